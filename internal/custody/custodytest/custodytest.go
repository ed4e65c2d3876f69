// Package custodytest provides custody doubles for ledger tests.
package custodytest

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/minx-network/distribution/internal/custody"
)

// Failing wraps a Custody and rejects transfers on demand.
type Failing struct {
	custody.Custody

	mu      sync.Mutex
	failIn  bool
	failOut bool
}

func Wrap(c custody.Custody) *Failing {
	return &Failing{Custody: c}
}

// FailTransfers makes every subsequent transfer, in or out, fail or succeed.
func (f *Failing) FailTransfers(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failIn, f.failOut = fail, fail
}

// FailTransferOut toggles only outbound transfers.
func (f *Failing) FailTransferOut(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOut = fail
}

func (f *Failing) TransferIn(from common.Address, amount *uint256.Int) error {
	f.mu.Lock()
	fail := f.failIn
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("%w: transfer disabled", custody.ErrTransferFailed)
	}
	return f.Custody.TransferIn(from, amount)
}

func (f *Failing) TransferOut(to common.Address, amount *uint256.Int) error {
	f.mu.Lock()
	fail := f.failOut
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("%w: transfer disabled", custody.ErrTransferFailed)
	}
	return f.Custody.TransferOut(to, amount)
}
