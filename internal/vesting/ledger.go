// Package vesting computes vesting entitlements and keeps the ledger of
// pre-registered beneficiaries.
//
// A Schedule unlocks a TGE fraction of its total at the start timestamp and
// the remainder linearly, in slice-sized steps, over the vesting duration
// that follows the cliff. The calculator is exported so the sale and swap
// ledgers apply the same curve to their own entries.
package vesting

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/minx-network/distribution/internal/access"
	"github.com/minx-network/distribution/internal/clock"
	"github.com/minx-network/distribution/internal/custody"
	"github.com/minx-network/distribution/internal/journal"
)

// Ledger holds a fixed set of owner-registered schedules funded from one
// custody account.
type Ledger struct {
	*access.Ownable

	mu      sync.Mutex
	custody custody.Custody
	clock   clock.Clock
	book    *Book
	opts    Options
}

// State is the persisted form of a Ledger.
type State struct {
	Schedules []*Schedule `json:"schedules"`
}

func NewLedger(c custody.Custody, clk clock.Clock, owner common.Address, opts ...Option) *Ledger {
	return &Ledger{
		Ownable: access.NewOwnable(owner),
		custody: c,
		clock:   clk,
		book:    NewBook(),
		opts:    NewOptions("vesting", opts...),
	}
}

// Name is the ledger name used in events and snapshots.
func (l *Ledger) Name() string { return l.opts.Name }

// Address is the holder the ledger's tokens are kept under.
func (l *Ledger) Address() common.Address { return l.custody.Holder() }

// AddSchedule registers one schedule with nothing released.
func (l *Ledger) AddSchedule(caller common.Address, s *Schedule) error {
	if err := l.CheckOwner(caller); err != nil {
		return err
	}
	if s == nil {
		return ErrInvalidBeneficiary
	}
	s = s.Clone()
	s.ReleasedAmount = new(uint256.Int)
	return l.admit(caller, []*Schedule{s})
}

// AddSchedules registers a batch of schedules, keeping any released amount
// they already carry. Either every schedule is admitted or none is.
func (l *Ledger) AddSchedules(caller common.Address, list []*Schedule) error {
	if err := l.CheckOwner(caller); err != nil {
		return err
	}
	batch := make([]*Schedule, len(list))
	for i, s := range list {
		if s == nil {
			return fmt.Errorf("schedule %d: %w", i, ErrInvalidBeneficiary)
		}
		batch[i] = s.Clone()
	}
	return l.admit(caller, batch)
}

func (l *Ledger) admit(caller common.Address, batch []*Schedule) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	need := new(uint256.Int)
	seen := make(map[common.Address]struct{}, len(batch))
	for i, s := range batch {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("schedule %d: %w", i, err)
		}
		if _, dup := seen[s.Beneficiary]; dup || l.book.Has(s.Beneficiary) {
			return fmt.Errorf("schedule %d: %w: %s already has a schedule", i, ErrInvalidBeneficiary, s.Beneficiary.Hex())
		}
		seen[s.Beneficiary] = struct{}{}
		if _, overflow := need.AddOverflow(need, s.Outstanding()); overflow {
			return fmt.Errorf("%w: batch total overflows", ErrInsufficientFunds)
		}
	}

	available := Available(l.custody.BalanceOf(l.custody.Holder()), l.book.Committed())
	if need.Gt(available) {
		l.opts.Logger.Debug("Rejected vesting schedules", "count", len(batch), "need", need, "available", available)
		return fmt.Errorf("%w: need %s, available %s", ErrInsufficientFunds, need.Dec(), available.Dec())
	}

	now := l.clock.Now()
	for _, s := range batch {
		l.book.Insert(s)
		l.opts.Record(journal.KindScheduleAdded, s.Beneficiary, s.TotalAmount, now)
		l.opts.Logger.Info("Added vesting schedule", "beneficiary", s.Beneficiary, "total", s.TotalAmount, "tge", s.TGEPermille, "start", s.StartTimestamp)
	}
	return nil
}

// ComputeReleasableAmount returns what who may release now.
func (l *Ledger) ComputeReleasableAmount(who common.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.book.Releasable(who, l.clock.Now())
}

// Release pays amount of the caller's vested tokens to the caller.
func (l *Ledger) Release(caller common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	err := l.book.Release(caller, amount, now, l.custody.TransferOut)
	if err != nil {
		l.opts.Logger.Debug("Release rejected", "beneficiary", caller, "amount", amount, "err", err)
		return err
	}
	l.opts.Record(journal.KindTokensReleased, caller, amount, now)
	l.opts.Logger.Info("Released vested tokens", "beneficiary", caller, "amount", amount)
	return nil
}

// GetVestingSchedule returns a copy of the schedule of who.
func (l *Ledger) GetVestingSchedule(who common.Address) (*Schedule, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.book.Lookup(who)
}

// Beneficiaries lists every registered beneficiary in address order.
func (l *Ledger) Beneficiaries() []common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.book.Beneficiaries()
}

// Committed is the amount owed to beneficiaries and not yet released.
func (l *Ledger) Committed() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.book.Committed()
}

// State returns a snapshot of every schedule.
func (l *Ledger) State() *State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &State{Schedules: l.book.Schedules()}
}

// Restore replaces the ledger's schedules with st. Custody balances are not
// checked; st is trusted to come from State.
func (l *Ledger) Restore(st *State) error {
	book := NewBook()
	for i, s := range st.Schedules {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("restore schedule %d: %w", i, err)
		}
		if book.Has(s.Beneficiary) {
			return fmt.Errorf("restore schedule %d: %w", i, ErrDuplicateBeneficiary)
		}
		book.Insert(s)
	}
	l.mu.Lock()
	l.book = book
	l.mu.Unlock()
	l.opts.Logger.Info("Restored vesting ledger", "schedules", book.Len())
	return nil
}
