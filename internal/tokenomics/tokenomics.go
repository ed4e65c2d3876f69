// Package tokenomics loads the allocation table and beneficiary lists the
// ledgers are deployed from.
package tokenomics

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/minx-network/distribution/internal/units"
	"github.com/minx-network/distribution/internal/vesting"
)

// Month is the length of one cliff or vesting month, and the slice length
// of every schedule.
const Month = 60 * 60 * 24 * 30

var (
	ErrUnknownAllocation = errors.New("tokenomics: unknown allocation")
	ErrMissingWallet     = errors.New("tokenomics: allocation has no wallet")
	ErrBadPercent        = errors.New("tokenomics: tge must be a percentage with at most one decimal")
)

// Allocation is one row of the allocation table.
type Allocation struct {
	// TGE is the percentage unlocked at the start, e.g. 2.5.
	TGE json.Number `json:"tge"`
	// Cliff and Vesting are in months.
	Cliff   uint64 `json:"cliff"`
	Vesting uint64 `json:"vesting"`
	// Amount is in whole tokens with up to 18 decimals.
	Amount json.Number `json:"amount"`
	// Start overrides the table's default start timestamp.
	Start uint64 `json:"start,omitempty"`
}

// Tokenomics is the whole allocation table.
type Tokenomics struct {
	StartTimestamp uint64                    `json:"startTimestamp"`
	Wallets        map[string]common.Address `json:"wallets"`
	Allocations    map[string]Allocation     `json:"allocations"`
}

// Load reads a tokenomics file.
func Load(path string) (*Tokenomics, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tokenomics: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a tokenomics document and checks every allocation converts.
func Parse(r io.Reader) (*Tokenomics, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	dec.DisallowUnknownFields()
	var t Tokenomics
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("decode tokenomics: %w", err)
	}
	for _, name := range t.Names() {
		if _, err := t.Template(name); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

// Names returns allocation names in sorted order.
func (t *Tokenomics) Names() []string {
	names := make([]string, 0, len(t.Allocations))
	for name := range t.Allocations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Template converts an allocation into a schedule with no beneficiary.
func (t *Tokenomics) Template(name string) (*vesting.Schedule, error) {
	a, ok := t.Allocations[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAllocation, name)
	}
	permille, err := PercentToPermille(a.TGE.String())
	if err != nil {
		return nil, fmt.Errorf("allocation %s: %w", name, err)
	}
	total, err := units.ParseTokens(a.Amount.String())
	if err != nil {
		return nil, fmt.Errorf("allocation %s: %w", name, err)
	}
	start := t.StartTimestamp
	if a.Start != 0 {
		start = a.Start
	}
	s := &vesting.Schedule{
		TGEPermille:        permille,
		StartTimestamp:     start,
		CliffDuration:      a.Cliff * Month,
		VestingDuration:    a.Vesting * Month,
		SlicePeriodSeconds: Month,
		TotalAmount:        total,
		ReleasedAmount:     new(uint256.Int),
	}
	if err := s.ValidateTemplate(); err != nil {
		return nil, fmt.Errorf("allocation %s: %w", name, err)
	}
	return s, nil
}

// Schedule is the allocation's schedule bound to its wallet.
func (t *Tokenomics) Schedule(name string) (*vesting.Schedule, error) {
	s, err := t.Template(name)
	if err != nil {
		return nil, err
	}
	wallet, ok := t.Wallets[name]
	if !ok || wallet == (common.Address{}) {
		return nil, fmt.Errorf("%w: %s", ErrMissingWallet, name)
	}
	s.Beneficiary = wallet
	return s, nil
}

// WalletSchedules returns the schedules of every allocation paid to a
// wallet, in allocation name order. Allocations sold through a sale ledger
// have no wallet and are skipped.
func (t *Tokenomics) WalletSchedules() ([]*vesting.Schedule, error) {
	var out []*vesting.Schedule
	for _, name := range t.Names() {
		if _, ok := t.Wallets[name]; !ok {
			continue
		}
		s, err := t.Schedule(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Total sums every allocation amount.
func (t *Tokenomics) Total() (*uint256.Int, error) {
	sum := new(uint256.Int)
	for _, name := range t.Names() {
		s, err := t.Template(name)
		if err != nil {
			return nil, err
		}
		if _, overflow := sum.AddOverflow(sum, s.TotalAmount); overflow {
			return nil, fmt.Errorf("%w: allocation total", units.ErrOverflow)
		}
	}
	return sum, nil
}

// PercentToPermille converts "2.5" into 25.
func PercentToPermille(s string) (uint64, error) {
	whole, frac, hasDot := strings.Cut(strings.TrimSpace(s), ".")
	if whole == "" || len(frac) > 1 || hasDot && frac == "" {
		return 0, fmt.Errorf("%w: %q", ErrBadPercent, s)
	}
	w, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadPercent, s)
	}
	var f uint64
	if frac != "" {
		if frac[0] < '0' || frac[0] > '9' {
			return 0, fmt.Errorf("%w: %q", ErrBadPercent, s)
		}
		f = uint64(frac[0] - '0')
	}
	permille := w*10 + f
	if w > 100 || permille > vesting.PermilleBase {
		return 0, fmt.Errorf("%w: %q above 100", ErrBadPercent, s)
	}
	return permille, nil
}
