// Package sale is the ledger of a strategic sale: the owner admits
// beneficiaries one at a time, each vesting an individual amount on a shared
// schedule template.
package sale

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/minx-network/distribution/internal/access"
	"github.com/minx-network/distribution/internal/clock"
	"github.com/minx-network/distribution/internal/custody"
	"github.com/minx-network/distribution/internal/journal"
	"github.com/minx-network/distribution/internal/vesting"
)

// Ledger admits beneficiaries against the uncommitted balance it holds.
type Ledger struct {
	*access.Ownable

	mu       sync.Mutex
	custody  custody.Custody
	clock    clock.Clock
	template vesting.Schedule
	book     *vesting.Book
	opts     vesting.Options
}

// State is the persisted form of a Ledger.
type State struct {
	Schedules []*vesting.Schedule `json:"schedules"`
}

// NewLedger creates a sale ledger. Only the timing and TGE fields of
// template are used.
func NewLedger(c custody.Custody, template *vesting.Schedule, clk clock.Clock, owner common.Address, opts ...vesting.Option) (*Ledger, error) {
	if template == nil {
		return nil, fmt.Errorf("%w: missing template", vesting.ErrInvalidSlice)
	}
	if err := template.ValidateTemplate(); err != nil {
		return nil, err
	}
	tmpl := vesting.FromTemplate(template, common.Address{}, new(uint256.Int))
	return &Ledger{
		Ownable:  access.NewOwnable(owner),
		custody:  c,
		clock:    clk,
		template: *tmpl,
		book:     vesting.NewBook(),
		opts:     vesting.NewOptions("sale", opts...),
	}, nil
}

func (l *Ledger) Name() string { return l.opts.Name }

func (l *Ledger) Address() common.Address { return l.custody.Holder() }

// Template returns a copy of the shared schedule parameters.
func (l *Ledger) Template() *vesting.Schedule {
	return l.template.Clone()
}

// AddBeneficiary admits who with amount tokens vesting on the template.
func (l *Ledger) AddBeneficiary(caller, who common.Address, amount *uint256.Int) error {
	if err := l.CheckOwner(caller); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if who == (common.Address{}) {
		return vesting.ErrInvalidBeneficiary
	}
	if l.book.Has(who) {
		return fmt.Errorf("%w: %s", vesting.ErrDuplicateBeneficiary, who.Hex())
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: amount must be greater than 0", vesting.ErrInvalidAmount)
	}
	available := l.withdrawable()
	if amount.Gt(available) {
		return fmt.Errorf("%w: amount %s, uncommitted %s", vesting.ErrInsufficientFunds, amount.Dec(), available.Dec())
	}

	l.book.Insert(vesting.FromTemplate(&l.template, who, amount))
	l.opts.Record(journal.KindBeneficiaryAdded, who, amount, l.clock.Now())
	l.opts.Logger.Info("Added sale beneficiary", "beneficiary", who, "amount", amount)
	return nil
}

// ComputeWithdrawableMinTokens is the balance not committed to any
// beneficiary.
func (l *Ledger) ComputeWithdrawableMinTokens() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.withdrawable()
}

func (l *Ledger) withdrawable() *uint256.Int {
	return vesting.Available(l.custody.BalanceOf(l.custody.Holder()), l.book.Committed())
}

// WithdrawMinTokens pays uncommitted tokens back to the owner.
func (l *Ledger) WithdrawMinTokens(caller common.Address, amount *uint256.Int) error {
	if err := l.CheckOwner(caller); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: amount must be greater than 0", vesting.ErrInvalidAmount)
	}
	available := l.withdrawable()
	if amount.Gt(available) {
		return fmt.Errorf("%w: requested %s, withdrawable %s", vesting.ErrExceedsWithdrawable, amount.Dec(), available.Dec())
	}
	if err := l.custody.TransferOut(caller, amount); err != nil {
		l.opts.Logger.Warn("Sale withdrawal transfer failed", "to", caller, "amount", amount, "err", err)
		return err
	}
	l.opts.Record(journal.KindTokensWithdrawn, caller, amount, l.clock.Now())
	l.opts.Logger.Info("Withdrew uncommitted sale tokens", "to", caller, "amount", amount)
	return nil
}

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
	if err := l.book.Release(caller, amount, now, l.custody.TransferOut); err != nil {
		l.opts.Logger.Debug("Release rejected", "beneficiary", caller, "amount", amount, "err", err)
		return err
	}
	l.opts.Record(journal.KindTokensReleased, caller, amount, now)
	l.opts.Logger.Info("Released sale tokens", "beneficiary", caller, "amount", amount)
	return nil
}

func (l *Ledger) GetVestingSchedule(who common.Address) (*vesting.Schedule, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.book.Lookup(who)
}

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

func (l *Ledger) State() *State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &State{Schedules: l.book.Schedules()}
}

// Restore replaces the admitted beneficiaries with st. Every schedule must
// match the ledger's template.
func (l *Ledger) Restore(st *State) error {
	book := vesting.NewBook()
	for i, s := range st.Schedules {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("restore schedule %d: %w", i, err)
		}
		if !l.matchesTemplate(s) {
			return fmt.Errorf("restore schedule %d: %w: timing differs from template", i, vesting.ErrInvalidDuration)
		}
		if book.Has(s.Beneficiary) {
			return fmt.Errorf("restore schedule %d: %w", i, vesting.ErrDuplicateBeneficiary)
		}
		book.Insert(s)
	}
	l.mu.Lock()
	l.book = book
	l.mu.Unlock()
	l.opts.Logger.Info("Restored sale ledger", "beneficiaries", book.Len())
	return nil
}

func (l *Ledger) matchesTemplate(s *vesting.Schedule) bool {
	t := &l.template
	return s.TGEPermille == t.TGEPermille &&
		s.StartTimestamp == t.StartTimestamp &&
		s.CliffDuration == t.CliffDuration &&
		s.VestingDuration == t.VestingDuration &&
		s.SlicePeriodSeconds == t.SlicePeriodSeconds
}
