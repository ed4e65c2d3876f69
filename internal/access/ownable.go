// Package access implements single-owner access control for ledger
// administration.
package access

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnauthorized is returned when a caller lacks the required role.
var ErrUnauthorized = errors.New("unauthorized account")

// Ownable tracks the single account allowed to run owner-only operations.
type Ownable struct {
	mu    sync.RWMutex
	owner common.Address
}

func NewOwnable(owner common.Address) *Ownable {
	return &Ownable{owner: owner}
}

// Owner returns the current owner.
func (o *Ownable) Owner() common.Address {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.owner
}

// IsOwner reports whether caller is the owner. The zero address is never
// the owner, even when ownership has been renounced.
func (o *Ownable) IsOwner(caller common.Address) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return caller != (common.Address{}) && caller == o.owner
}

// CheckOwner returns ErrUnauthorized unless caller is the owner.
func (o *Ownable) CheckOwner(caller common.Address) error {
	if !o.IsOwner(caller) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	return nil
}

// TransferOwnership hands ownership to newOwner. Passing the zero address
// renounces ownership.
func (o *Ownable) TransferOwnership(caller, newOwner common.Address) error {
	if err := o.CheckOwner(caller); err != nil {
		return err
	}
	o.mu.Lock()
	o.owner = newOwner
	o.mu.Unlock()
	return nil
}
