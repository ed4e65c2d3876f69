package vesting

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Book is the set of schedules of one ledger, keyed by beneficiary. It is
// not safe for concurrent use; the owning ledger serialises access.
type Book struct {
	schedules map[common.Address]*Schedule
}

func NewBook() *Book {
	return &Book{schedules: make(map[common.Address]*Schedule)}
}

func (b *Book) Len() int { return len(b.schedules) }

func (b *Book) Has(who common.Address) bool {
	_, ok := b.schedules[who]
	return ok
}

// Insert stores a copy of s, replacing any schedule of the same beneficiary.
func (b *Book) Insert(s *Schedule) {
	b.schedules[s.Beneficiary] = s.Clone()
}

// Lookup returns a copy of the schedule of who.
func (b *Book) Lookup(who common.Address) (*Schedule, error) {
	s, err := b.find(who)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// Releasable runs the calculator on the schedule of who.
func (b *Book) Releasable(who common.Address, now uint64) (*uint256.Int, error) {
	s, err := b.find(who)
	if err != nil {
		return nil, err
	}
	return Releasable(s, now), nil
}

func (b *Book) find(who common.Address) (*Schedule, error) {
	if who == (common.Address{}) {
		return nil, ErrInvalidBeneficiary
	}
	s, ok := b.schedules[who]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBeneficiaryNotFound, who.Hex())
	}
	return s, nil
}

// Release pays amount of the caller's releasable tokens through pay. The
// released amount is bumped before pay runs and restored if pay fails.
func (b *Book) Release(caller common.Address, amount *uint256.Int, now uint64, pay func(common.Address, *uint256.Int) error) error {
	s, ok := b.schedules[caller]
	if !ok || caller == (common.Address{}) {
		return fmt.Errorf("%w: %s is not a beneficiary", ErrUnauthorized, caller.Hex())
	}
	releasable := Releasable(s, now)
	if releasable.IsZero() {
		return ErrNoTokensDue
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: release amount is zero", ErrInvalidAmount)
	}
	if amount.Gt(releasable) {
		return fmt.Errorf("%w: requested %s, releasable %s", ErrExceedsReleasable, amount.Dec(), releasable.Dec())
	}

	prev := amountOrZero(s.ReleasedAmount).Clone()
	s.ReleasedAmount = new(uint256.Int).Add(prev, amount)
	if err := pay(caller, amount); err != nil {
		s.ReleasedAmount = prev
		return err
	}
	return nil
}

// Committed is the sum over all schedules of total minus released.
func (b *Book) Committed() *uint256.Int {
	sum := new(uint256.Int)
	for _, s := range b.schedules {
		sum.Add(sum, s.Outstanding())
	}
	return sum
}

// Released is the sum of every released amount.
func (b *Book) Released() *uint256.Int {
	sum := new(uint256.Int)
	for _, s := range b.schedules {
		sum.Add(sum, amountOrZero(s.ReleasedAmount))
	}
	return sum
}

// Beneficiaries returns every beneficiary in address order.
func (b *Book) Beneficiaries() []common.Address {
	out := make([]common.Address, 0, len(b.schedules))
	for who := range b.schedules {
		out = append(out, who)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// Schedules returns copies of every schedule in beneficiary order.
func (b *Book) Schedules() []*Schedule {
	out := make([]*Schedule, 0, len(b.schedules))
	for _, who := range b.Beneficiaries() {
		out = append(out, b.schedules[who].Clone())
	}
	return out
}

// Available is balance minus committed, floored at zero.
func Available(balance, committed *uint256.Int) *uint256.Int {
	if !balance.Gt(committed) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(balance, committed)
}
