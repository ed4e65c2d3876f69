// Package swap is the ledger of a time-boxed private sale. While the sale is
// open buyers deposit a secondary token; once it closes every net deposit
// becomes a vesting entitlement to the primary token at a fixed ratio.
package swap

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/minx-network/distribution/internal/access"
	"github.com/minx-network/distribution/internal/clock"
	"github.com/minx-network/distribution/internal/custody"
	"github.com/minx-network/distribution/internal/journal"
	"github.com/minx-network/distribution/internal/vesting"
)

// ErrMissingCustody is returned when no primary custody is configured.
var ErrMissingCustody = errors.New("swap: primary custody is required")

// Phase is the state of the sale window.
type Phase int

const (
	Open Phase = iota
	Closed
)

func (p Phase) String() string {
	switch p {
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Params configures a swap ledger.
type Params struct {
	// Primary holds the token being sold.
	Primary custody.Custody
	// Secondary holds the token buyers pay with.
	Secondary custody.Custody
	// Ratio is the number of primary base units granted per secondary base
	// unit deposited.
	Ratio uint64
	// TotalAmount is the primary supply reserved for the sale.
	TotalAmount *uint256.Int
	// Template carries the vesting timing applied to every buyer.
	Template *vesting.Schedule
	// SaleDuration is how long the sale stays open, in seconds from
	// construction.
	SaleDuration uint64
	// SaleEnd, when nonzero, is the close time recorded by an earlier run
	// and replaces construction time plus SaleDuration.
	SaleEnd uint64
}

// Ledger is the swap ledger.
type Ledger struct {
	*access.Ownable

	mu        sync.Mutex
	primary   custody.Custody
	secondary custody.Custody
	ratio     *uint256.Int
	total     *uint256.Int
	limit     *uint256.Int
	template  vesting.Schedule
	saleEnd   uint64
	clock     clock.Clock
	opts      vesting.Options

	// deposits holds net deposits not yet turned into schedules.
	deposits map[common.Address]*uint256.Int
	// deposited is the sum of net deposits, kept after materialisation.
	deposited *uint256.Int
	book      *vesting.Book
}

// State is the persisted form of a Ledger.
type State struct {
	SaleEnd   uint64                          `json:"saleEnd"`
	Deposits  map[common.Address]*uint256.Int `json:"deposits"`
	Deposited *uint256.Int                    `json:"deposited"`
	Schedules []*vesting.Schedule             `json:"schedules"`
}

func NewLedger(p Params, clk clock.Clock, owner common.Address, opts ...vesting.Option) (*Ledger, error) {
	if p.Primary == nil {
		return nil, ErrMissingCustody
	}
	if p.Secondary == nil || p.Secondary.Asset() == (common.Address{}) {
		return nil, fmt.Errorf("%w: swap token address cannot be 0", vesting.ErrInvalidSwapToken)
	}
	if p.Ratio == 0 {
		return nil, fmt.Errorf("%w: ratio must be greater than 0", vesting.ErrInvalidAmount)
	}
	if p.TotalAmount == nil || p.TotalAmount.IsZero() {
		return nil, fmt.Errorf("%w: total amount must be greater than 0", vesting.ErrInvalidAmount)
	}
	if p.Template == nil {
		return nil, fmt.Errorf("%w: missing template", vesting.ErrInvalidSlice)
	}
	if err := p.Template.ValidateTemplate(); err != nil {
		return nil, err
	}

	saleEnd := p.SaleEnd
	if saleEnd == 0 {
		now := clk.Now()
		if saleEnd = now + p.SaleDuration; saleEnd < now {
			saleEnd = math.MaxUint64
		}
	}
	if saleEnd > p.Template.StartTimestamp {
		return nil, fmt.Errorf("%w: sale ends at %d, vesting starts at %d", vesting.ErrScheduleOverlapsSale, saleEnd, p.Template.StartTimestamp)
	}

	ratio := uint256.NewInt(p.Ratio)
	l := &Ledger{
		Ownable:   access.NewOwnable(owner),
		primary:   p.Primary,
		secondary: p.Secondary,
		ratio:     ratio,
		total:     p.TotalAmount.Clone(),
		limit:     new(uint256.Int).Div(p.TotalAmount, ratio),
		template:  *vesting.FromTemplate(p.Template, common.Address{}, new(uint256.Int)),
		saleEnd:   saleEnd,
		clock:     clk,
		opts:      vesting.NewOptions("swap", opts...),
		deposits:  make(map[common.Address]*uint256.Int),
		deposited: new(uint256.Int),
		book:      vesting.NewBook(),
	}
	l.opts.Logger.Info("Opened swap sale", "saleEnd", saleEnd, "ratio", p.Ratio, "total", p.TotalAmount, "cap", l.limit)
	return l, nil
}

func (l *Ledger) Name() string { return l.opts.Name }

func (l *Ledger) Address() common.Address { return l.primary.Holder() }

// SaleEnd is the first second at which the sale is closed.
func (l *Ledger) SaleEnd() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saleEnd
}

func (l *Ledger) Ratio() uint64 { return l.ratio.Uint64() }

// TotalAmount is the primary supply reserved for the sale.
func (l *Ledger) TotalAmount() *uint256.Int { return l.total.Clone() }

// DepositCap is the most secondary tokens the sale accepts in total.
func (l *Ledger) DepositCap() *uint256.Int { return l.limit.Clone() }

func (l *Ledger) Template() *vesting.Schedule { return l.template.Clone() }

// Phase reports whether the sale is open at the current time.
func (l *Ledger) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase()
}

func (l *Ledger) phase() Phase {
	if l.clock.Now() < l.saleEnd {
		return Open
	}
	return Closed
}

// Deposit pulls amount of the secondary token from caller. caller must have
// approved the ledger beforehand.
func (l *Ledger) Deposit(caller common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: amount must be greater than 0", vesting.ErrInvalidAmount)
	}
	if l.phase() == Closed {
		return vesting.ErrSaleEnded
	}
	after, overflow := new(uint256.Int).AddOverflow(l.deposited, amount)
	if overflow || after.Gt(l.limit) {
		return fmt.Errorf("%w: deposits would reach %s, cap %s", vesting.ErrExceedsSupply, after.Dec(), l.limit.Dec())
	}

	if err := l.secondary.TransferIn(caller, amount); err != nil {
		l.opts.Logger.Debug("Deposit transfer failed", "from", caller, "amount", amount, "err", err)
		return err
	}
	l.deposited = after
	l.deposits[caller] = new(uint256.Int).Add(l.pending(caller), amount)

	l.opts.Record(journal.KindDeposited, caller, amount, l.clock.Now())
	l.opts.Logger.Info("Accepted swap deposit", "from", caller, "amount", amount, "total", l.deposited)
	return nil
}

// Withdraw returns amount of the caller's deposit while the sale is open.
func (l *Ledger) Withdraw(caller common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.phase() == Closed {
		return vesting.ErrSaleEnded
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: amount must be greater than 0", vesting.ErrInvalidAmount)
	}
	held := l.pending(caller)
	if amount.Gt(held) {
		return fmt.Errorf("%w: deposit %s, requested %s", vesting.ErrInsufficientBalance, held.Dec(), amount.Dec())
	}

	prevDeposited := l.deposited.Clone()
	l.setPending(caller, new(uint256.Int).Sub(held, amount))
	l.deposited.Sub(l.deposited, amount)
	if err := l.secondary.TransferOut(caller, amount); err != nil {
		l.setPending(caller, held)
		l.deposited = prevDeposited
		l.opts.Logger.Warn("Swap withdrawal transfer failed", "to", caller, "amount", amount, "err", err)
		return err
	}

	l.opts.Record(journal.KindDepositWithdrawn, caller, amount, l.clock.Now())
	l.opts.Logger.Info("Returned swap deposit", "to", caller, "amount", amount)
	return nil
}

func (l *Ledger) pending(who common.Address) *uint256.Int {
	if d, ok := l.deposits[who]; ok {
		return d
	}
	return new(uint256.Int)
}

func (l *Ledger) setPending(who common.Address, v *uint256.Int) {
	if v.IsZero() {
		delete(l.deposits, who)
		return
	}
	l.deposits[who] = v
}

// DepositOf returns the net secondary amount caller has in the sale.
func (l *Ledger) DepositOf(who common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d, ok := l.deposits[who]; ok {
		return d.Clone()
	}
	if s, err := l.book.Lookup(who); err == nil {
		return s.TotalAmount.Div(s.TotalAmount, l.ratio)
	}
	return new(uint256.Int)
}

// TotalDeposited is the sum of net deposits.
func (l *Ledger) TotalDeposited() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deposited.Clone()
}

// Sold is the primary amount buyers are entitled to.
func (l *Ledger) Sold() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sold()
}

func (l *Ledger) sold() *uint256.Int {
	return new(uint256.Int).Mul(l.deposited, l.ratio)
}

// owed is the primary amount sold and not yet released to buyers.
func (l *Ledger) owed() *uint256.Int {
	sold, released := l.sold(), l.book.Released()
	if released.Gt(sold) {
		return new(uint256.Int)
	}
	return sold.Sub(sold, released)
}

// CalculateWithdrawableMinToken is the primary balance the owner may take
// back: zero while the sale is open, afterwards everything not owed to
// buyers.
func (l *Ledger) CalculateWithdrawableMinToken(caller common.Address) (*uint256.Int, error) {
	if err := l.CheckOwner(caller); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.withdrawableMin(), nil
}

func (l *Ledger) withdrawableMin() *uint256.Int {
	if l.phase() == Open {
		return new(uint256.Int)
	}
	return vesting.Available(l.primary.BalanceOf(l.primary.Holder()), l.owed())
}

// WithdrawSwapToken pays collected secondary tokens to the owner once the
// sale has closed.
func (l *Ledger) WithdrawSwapToken(caller common.Address, amount *uint256.Int) error {
	if err := l.CheckOwner(caller); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.phase() == Open {
		return vesting.ErrSaleOngoing
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: amount must be greater than 0", vesting.ErrInvalidAmount)
	}
	balance := l.secondary.BalanceOf(l.secondary.Holder())
	if amount.Gt(balance) {
		return fmt.Errorf("%w: swap token balance %s, requested %s", vesting.ErrInsufficientBalance, balance.Dec(), amount.Dec())
	}
	if err := l.secondary.TransferOut(caller, amount); err != nil {
		l.opts.Logger.Warn("Swap token withdrawal failed", "to", caller, "amount", amount, "err", err)
		return err
	}
	l.opts.Record(journal.KindSwapTokenWithdrawn, caller, amount, l.clock.Now())
	l.opts.Logger.Info("Withdrew swap tokens", "to", caller, "amount", amount)
	return nil
}

// WithdrawMinToken pays unsold primary tokens to the owner once the sale has
// closed.
func (l *Ledger) WithdrawMinToken(caller common.Address, amount *uint256.Int) error {
	if err := l.CheckOwner(caller); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.phase() == Open {
		return vesting.ErrSaleOngoing
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: amount must be greater than 0", vesting.ErrInvalidAmount)
	}
	available := l.withdrawableMin()
	if amount.Gt(available) {
		return fmt.Errorf("%w: withdrawable %s, requested %s", vesting.ErrInsufficientSupply, available.Dec(), amount.Dec())
	}
	if err := l.primary.TransferOut(caller, amount); err != nil {
		l.opts.Logger.Warn("Unsold token withdrawal failed", "to", caller, "amount", amount, "err", err)
		return err
	}
	l.opts.Record(journal.KindTokensWithdrawn, caller, amount, l.clock.Now())
	l.opts.Logger.Info("Withdrew unsold tokens", "to", caller, "amount", amount)
	return nil
}

// GetVestingSchedule returns the entitlement of who. While the sale is open,
// or when who holds no net deposit, it returns the empty schedule.
func (l *Ledger) GetVestingSchedule(who common.Address) *vesting.Schedule {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.phase() == Open || who == (common.Address{}) {
		return vesting.Empty()
	}
	l.materialize(who)
	s, err := l.book.Lookup(who)
	if err != nil {
		return vesting.Empty()
	}
	return s
}

// materialize turns the pending deposit of who into a schedule. It must only
// run once the sale is closed.
func (l *Ledger) materialize(who common.Address) {
	d, ok := l.deposits[who]
	if !ok || l.book.Has(who) {
		return
	}
	total := new(uint256.Int).Mul(d, l.ratio)
	l.book.Insert(vesting.FromTemplate(&l.template, who, total))
	delete(l.deposits, who)
	l.opts.Logger.Debug("Materialised swap entitlement", "beneficiary", who, "deposit", d, "total", total)
}

func (l *Ledger) ComputeReleasableAmount(who common.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.phase() == Open {
		return nil, vesting.ErrSaleOngoing
	}
	l.materialize(who)
	return l.book.Releasable(who, l.clock.Now())
}

// Release pays amount of the caller's vested primary tokens to the caller.
func (l *Ledger) Release(caller common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.phase() == Open {
		return vesting.ErrSaleOngoing
	}
	l.materialize(caller)
	now := l.clock.Now()
	if err := l.book.Release(caller, amount, now, l.primary.TransferOut); err != nil {
		l.opts.Logger.Debug("Release rejected", "beneficiary", caller, "amount", amount, "err", err)
		return err
	}
	l.opts.Record(journal.KindTokensReleased, caller, amount, now)
	l.opts.Logger.Info("Released swap tokens", "beneficiary", caller, "amount", amount)
	return nil
}

// Buyers lists everyone holding a deposit or an entitlement, in address
// order.
func (l *Ledger) Buyers() []common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.book.Beneficiaries()
	for who := range l.deposits {
		out = append(out, who)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

func (l *Ledger) State() *State {
	l.mu.Lock()
	defer l.mu.Unlock()
	deposits := make(map[common.Address]*uint256.Int, len(l.deposits))
	for who, d := range l.deposits {
		deposits[who] = d.Clone()
	}
	return &State{
		SaleEnd:   l.saleEnd,
		Deposits:  deposits,
		Deposited: l.deposited.Clone(),
		Schedules: l.book.Schedules(),
	}
}

// Restore replaces the ledger's sale window, deposits and entitlements
// with st.
func (l *Ledger) Restore(st *State) error {
	if st.SaleEnd > l.template.StartTimestamp {
		return fmt.Errorf("%w: restored sale end %d", vesting.ErrScheduleOverlapsSale, st.SaleEnd)
	}
	book := vesting.NewBook()
	sum := new(uint256.Int)
	for i, s := range st.Schedules {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("restore schedule %d: %w", i, err)
		}
		if book.Has(s.Beneficiary) {
			return fmt.Errorf("restore schedule %d: %w", i, vesting.ErrDuplicateBeneficiary)
		}
		book.Insert(s)
		sum.Add(sum, new(uint256.Int).Div(s.TotalAmount, l.ratio))
	}
	deposits := make(map[common.Address]*uint256.Int, len(st.Deposits))
	for who, d := range st.Deposits {
		if d == nil || d.IsZero() || who == (common.Address{}) || book.Has(who) {
			return fmt.Errorf("%w: bad restored deposit for %s", vesting.ErrInvalidAmount, who.Hex())
		}
		deposits[who] = d.Clone()
		sum.Add(sum, d)
	}
	deposited := new(uint256.Int)
	if st.Deposited != nil {
		deposited.Set(st.Deposited)
	}
	if !sum.Eq(deposited) || deposited.Gt(l.limit) {
		return fmt.Errorf("%w: restored deposits %s do not add up to %s", vesting.ErrInvalidAmount, sum.Dec(), deposited.Dec())
	}

	l.mu.Lock()
	l.saleEnd = st.SaleEnd
	l.deposits = deposits
	l.deposited = deposited
	l.book = book
	l.mu.Unlock()
	l.opts.Logger.Info("Restored swap ledger", "saleEnd", st.SaleEnd, "deposits", len(deposits), "schedules", book.Len())
	return nil
}
