package swap

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minx-network/distribution/internal/clock"
	"github.com/minx-network/distribution/internal/custody"
	"github.com/minx-network/distribution/internal/custody/custodytest"
	"github.com/minx-network/distribution/internal/journal"
	"github.com/minx-network/distribution/internal/journal/memory"
	"github.com/minx-network/distribution/internal/units"
	"github.com/minx-network/distribution/internal/vesting"
)

var (
	minAddr  = common.HexToAddress("0x552f4D98F338fBbD3175ddf38cE1260F403Bbba2")
	usdAddr  = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	deployer = common.HexToAddress("0x1111111111111111111111111111111111111111")
	anyone   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	swapAddr = common.HexToAddress("0x6666666666666666666666666666666666666666")
)

const (
	testStart    = 1_700_000_000
	saleDuration = 300
	ratio        = 30
)

type fixture struct {
	swap      *Ledger
	min       *custody.Token
	usd       *custody.Token
	clock     *clock.Manual
	primary   *custodytest.Failing
	secondary *custodytest.Failing
	journal   *memory.Store
}

func privateTemplate() *vesting.Schedule {
	return &vesting.Schedule{
		TGEPermille:        100,
		StartTimestamp:     testStart + 3600,
		CliffDuration:      600,
		VestingDuration:    1200,
		SlicePeriodSeconds: 120,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := custody.NewMemoryState()
	f := &fixture{
		min:     custody.NewToken(st, minAddr, "MIN Token", "MIN"),
		usd:     custody.NewToken(st, usdAddr, "Tether USD", "USDT"),
		clock:   clock.NewManual(testStart),
		journal: memory.NewStore(),
	}
	require.NoError(t, f.min.Mint(deployer, units.Tokens(300_000_000)))
	require.NoError(t, f.usd.Mint(deployer, units.Tokens(300_000_000)))
	require.NoError(t, f.usd.Transfer(deployer, anyone, units.Tokens(1_000)))
	f.primary = custodytest.Wrap(custody.NewVault(f.min, swapAddr))
	f.secondary = custodytest.Wrap(custody.NewVault(f.usd, swapAddr))

	l, err := NewLedger(f.params(), f.clock, deployer, vesting.WithRecorder(f.journal))
	require.NoError(t, err)
	f.swap = l
	require.NoError(t, f.min.Transfer(deployer, swapAddr, units.Tokens(1_500_000)))
	return f
}

func (f *fixture) params() Params {
	return Params{
		Primary:      f.primary,
		Secondary:    f.secondary,
		Ratio:        ratio,
		TotalAmount:  units.Tokens(1_500_000),
		Template:     privateTemplate(),
		SaleDuration: saleDuration,
	}
}

func (f *fixture) deposit(t *testing.T, who common.Address, tokens uint64) {
	t.Helper()
	require.NoError(t, f.usd.Approve(who, swapAddr, units.Tokens(tokens)))
	require.NoError(t, f.swap.Deposit(who, units.Tokens(tokens)))
}

func (f *fixture) closeSale() {
	f.clock.Advance(saleDuration)
}

func TestNewLedger_Validation(t *testing.T) {
	f := newFixture(t)

	p := f.params()
	p.Secondary = custody.NewVault(custody.NewToken(custody.NewMemoryState(), common.Address{}, "", ""), swapAddr)
	_, err := NewLedger(p, f.clock, deployer)
	assert.ErrorIs(t, err, vesting.ErrInvalidSwapToken)

	p = f.params()
	p.Secondary = nil
	_, err = NewLedger(p, f.clock, deployer)
	assert.ErrorIs(t, err, vesting.ErrInvalidSwapToken)

	p = f.params()
	p.SaleDuration = 2 * 3600
	_, err = NewLedger(p, f.clock, deployer)
	assert.ErrorIs(t, err, vesting.ErrScheduleOverlapsSale)

	p = f.params()
	p.SaleDuration = 3600
	_, err = NewLedger(p, f.clock, deployer)
	assert.NoError(t, err, "sale may end exactly when vesting starts")

	p = f.params()
	p.Ratio = 0
	_, err = NewLedger(p, f.clock, deployer)
	assert.ErrorIs(t, err, vesting.ErrInvalidAmount)

	p = f.params()
	p.TotalAmount = new(uint256.Int)
	_, err = NewLedger(p, f.clock, deployer)
	assert.ErrorIs(t, err, vesting.ErrInvalidAmount)

	p = f.params()
	p.Primary = nil
	_, err = NewLedger(p, f.clock, deployer)
	assert.ErrorIs(t, err, ErrMissingCustody)
}

func TestLedger_Phase(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, Open, f.swap.Phase())
	assert.Equal(t, uint64(testStart+saleDuration), f.swap.SaleEnd())

	f.clock.Advance(saleDuration - 1)
	assert.Equal(t, Open, f.swap.Phase())
	f.clock.Advance(1)
	assert.Equal(t, Closed, f.swap.Phase())
	assert.Equal(t, "closed", Closed.String())
}

func TestLedger_Deposit(t *testing.T) {
	f := newFixture(t)

	f.deposit(t, deployer, 10)
	assert.Equal(t, units.Tokens(10).Dec(), f.usd.BalanceOf(swapAddr).Dec())
	assert.Equal(t, units.Tokens(10).Dec(), f.swap.DepositOf(deployer).Dec())
	assert.Equal(t, units.Tokens(10).Dec(), f.swap.TotalDeposited().Dec())
}

func TestLedger_DepositRequiresApproval(t *testing.T) {
	f := newFixture(t)
	err := f.swap.Deposit(deployer, units.Tokens(1))
	assert.ErrorIs(t, err, custody.ErrInsufficientAllowance)
	assert.ErrorIs(t, err, vesting.ErrTransferFailed)
	assert.True(t, f.swap.TotalDeposited().IsZero())
	assert.Zero(t, f.journal.Len())
}

func TestLedger_DepositValidation(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, units.Tokens(50_000).Dec(), f.swap.DepositCap().Dec())

	require.NoError(t, f.usd.Approve(deployer, swapAddr, units.Tokens(450_001)))
	assert.ErrorIs(t, f.swap.Deposit(deployer, units.Tokens(450_001)), vesting.ErrExceedsSupply)
	assert.ErrorIs(t, f.swap.Deposit(deployer, new(uint256.Int)), vesting.ErrInvalidAmount)

	require.NoError(t, f.swap.Deposit(deployer, units.Tokens(50_000)))
	require.NoError(t, f.usd.Transfer(deployer, anyone, units.Tokens(1)))
	require.NoError(t, f.usd.Approve(anyone, swapAddr, units.Tokens(1)))
	assert.ErrorIs(t, f.swap.Deposit(anyone, units.Tokens(1)), vesting.ErrExceedsSupply, "cap is cumulative")
}

func TestLedger_RedepositAfterWithdraw(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, deployer, 10)
	require.NoError(t, f.swap.Withdraw(deployer, units.Tokens(10)))
	assert.True(t, f.swap.DepositOf(deployer).IsZero())

	f.deposit(t, deployer, 10)
	assert.Equal(t, units.Tokens(10).Dec(), f.swap.DepositOf(deployer).Dec())
}

func TestLedger_DepositAfterSaleEnd(t *testing.T) {
	f := newFixture(t)
	f.closeSale()
	require.NoError(t, f.usd.Approve(deployer, swapAddr, units.Tokens(10)))
	assert.ErrorIs(t, f.swap.Deposit(deployer, units.Tokens(10)), vesting.ErrSaleEnded)
}

func TestLedger_Withdraw(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, deployer, 10)

	assert.ErrorIs(t, f.swap.Withdraw(deployer, units.Tokens(20)), vesting.ErrInsufficientBalance)
	assert.ErrorIs(t, f.swap.Withdraw(anyone, units.Tokens(1)), vesting.ErrInsufficientBalance)
	assert.ErrorIs(t, f.swap.Withdraw(deployer, new(uint256.Int)), vesting.ErrInvalidAmount)

	f.closeSale()
	assert.ErrorIs(t, f.swap.Withdraw(deployer, units.Tokens(10)), vesting.ErrSaleEnded)
}

func TestLedger_WithdrawRollsBackOnTransferFailure(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, deployer, 10)

	f.secondary.FailTransfers(true)
	assert.ErrorIs(t, f.swap.Withdraw(deployer, units.Tokens(10)), vesting.ErrTransferFailed)
	assert.Equal(t, units.Tokens(10).Dec(), f.swap.DepositOf(deployer).Dec())
	assert.Equal(t, units.Tokens(10).Dec(), f.swap.TotalDeposited().Dec())
	assert.Equal(t, units.Tokens(10).Dec(), f.usd.BalanceOf(swapAddr).Dec())
}

func TestLedger_DepositWithdrawRoundTrip(t *testing.T) {
	f := newFixture(t)
	before := f.usd.BalanceOf(deployer)

	f.deposit(t, deployer, 7)
	require.NoError(t, f.swap.Withdraw(deployer, units.Tokens(3)))
	require.NoError(t, f.swap.Withdraw(deployer, units.Tokens(4)))

	assert.Equal(t, before.Dec(), f.usd.BalanceOf(deployer).Dec())
	assert.True(t, f.usd.BalanceOf(swapAddr).IsZero())
	assert.True(t, f.swap.TotalDeposited().IsZero())
	assert.Empty(t, f.swap.Buyers())

	var kinds []journal.Kind
	for _, e := range f.journal.Events() {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []journal.Kind{journal.KindDeposited, journal.KindDepositWithdrawn, journal.KindDepositWithdrawn}, kinds)
}

func TestLedger_CalculateWithdrawableMinToken(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, deployer, 10)

	w, err := f.swap.CalculateWithdrawableMinToken(deployer)
	require.NoError(t, err)
	assert.True(t, w.IsZero(), "nothing is withdrawable while the sale is open")

	_, err = f.swap.CalculateWithdrawableMinToken(anyone)
	assert.ErrorIs(t, err, vesting.ErrUnauthorized)

	f.closeSale()
	w, err = f.swap.CalculateWithdrawableMinToken(deployer)
	require.NoError(t, err)
	assert.Equal(t, units.Tokens(1_500_000-300).Dec(), w.Dec())
	assert.Equal(t, units.Tokens(300).Dec(), f.swap.Sold().Dec())
}

func TestLedger_WithdrawSwapToken(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, deployer, 10)

	assert.ErrorIs(t, f.swap.WithdrawSwapToken(deployer, units.Tokens(10)), vesting.ErrSaleOngoing)

	f.closeSale()
	require.NoError(t, f.min.Transfer(deployer, swapAddr, units.Tokens(1000)))
	assert.ErrorIs(t, f.swap.WithdrawSwapToken(anyone, units.Tokens(10)), vesting.ErrUnauthorized)
	assert.ErrorIs(t, f.swap.WithdrawSwapToken(deployer, units.Tokens(11)), vesting.ErrInsufficientBalance)

	f.secondary.FailTransfers(true)
	assert.ErrorIs(t, f.swap.WithdrawSwapToken(deployer, units.Tokens(10)), vesting.ErrTransferFailed)
	f.secondary.FailTransfers(false)

	require.NoError(t, f.swap.WithdrawSwapToken(deployer, units.Tokens(10)))
	assert.True(t, f.usd.BalanceOf(swapAddr).IsZero())
}

func TestLedger_WithdrawSwapTokenEmpty(t *testing.T) {
	f := newFixture(t)
	f.closeSale()
	assert.ErrorIs(t, f.swap.WithdrawSwapToken(deployer, units.Tokens(1)), vesting.ErrInsufficientBalance)
}

func TestLedger_GetVestingSchedule(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, anyone, 1)
	assert.True(t, f.swap.GetVestingSchedule(anyone).IsZero(), "no entitlement while open")

	f.closeSale()
	s := f.swap.GetVestingSchedule(anyone)
	require.False(t, s.IsZero())
	assert.Equal(t, anyone, s.Beneficiary)
	assert.Equal(t, units.Tokens(30).Dec(), s.TotalAmount.Dec())
	assert.Equal(t, uint64(testStart+3600), s.StartTimestamp)
	assert.Equal(t, uint64(100), s.TGEPermille)

	// Materialised once; the deposit now lives in the schedule
	again := f.swap.GetVestingSchedule(anyone)
	assert.Equal(t, s.TotalAmount.Dec(), again.TotalAmount.Dec())
	assert.Equal(t, units.Tokens(1).Dec(), f.swap.DepositOf(anyone).Dec())
	assert.True(t, f.swap.GetVestingSchedule(common.Address{}).IsZero())
}

func TestLedger_NoScheduleWithoutNetDeposit(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, deployer, 10)
	require.NoError(t, f.swap.Withdraw(deployer, units.Tokens(10)))

	// Tokens sent directly, bypassing Deposit, buy nothing
	require.NoError(t, f.usd.Transfer(deployer, swapAddr, units.Tokens(10)))
	f.closeSale()
	require.NoError(t, f.swap.WithdrawSwapToken(deployer, units.Tokens(10)))

	assert.True(t, f.swap.GetVestingSchedule(deployer).IsZero())
}

func TestLedger_WithdrawMinToken(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.swap.WithdrawMinToken(deployer, uint256.NewInt(100)), vesting.ErrSaleOngoing)

	f.deposit(t, deployer, 45)
	f.closeSale()
	require.NoError(t, f.min.Transfer(deployer, swapAddr, units.Tokens(155)))
	require.NoError(t, f.swap.WithdrawSwapToken(deployer, units.Tokens(45)))

	assert.ErrorIs(t, f.swap.WithdrawMinToken(anyone, uint256.NewInt(100)), vesting.ErrUnauthorized)
	assert.ErrorIs(t, f.swap.WithdrawMinToken(deployer, units.Tokens(300_000_000)), vesting.ErrInsufficientSupply)

	// 1_500_155 held, 1_350 owed to the buyer
	w, err := f.swap.CalculateWithdrawableMinToken(deployer)
	require.NoError(t, err)
	assert.Equal(t, units.Tokens(1_500_155-1_350).Dec(), w.Dec())
	assert.ErrorIs(t, f.swap.WithdrawMinToken(deployer, new(uint256.Int).AddUint64(w, 1)), vesting.ErrInsufficientSupply)

	f.primary.FailTransfers(true)
	assert.ErrorIs(t, f.swap.WithdrawMinToken(deployer, units.Tokens(5)), vesting.ErrTransferFailed)
	f.primary.FailTransfers(false)

	require.NoError(t, f.swap.WithdrawMinToken(deployer, w))
	assert.Equal(t, units.Tokens(1_350).Dec(), f.min.BalanceOf(swapAddr).Dec(), "buyer entitlement stays behind")
}

func TestLedger_BuyerRelease(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, anyone, 100)

	_, err := f.swap.ComputeReleasableAmount(anyone)
	assert.ErrorIs(t, err, vesting.ErrSaleOngoing)
	assert.ErrorIs(t, f.swap.Release(anyone, units.Tokens(1)), vesting.ErrSaleOngoing)

	f.closeSale()
	releasable, err := f.swap.ComputeReleasableAmount(anyone)
	require.NoError(t, err)
	assert.True(t, releasable.IsZero(), "vesting has not started")
	assert.ErrorIs(t, f.swap.Release(anyone, units.Tokens(1)), vesting.ErrNoTokensDue)
	assert.ErrorIs(t, f.swap.Release(deployer, units.Tokens(1)), vesting.ErrUnauthorized)

	f.clock.Set(testStart + 3600)
	releasable, err = f.swap.ComputeReleasableAmount(anyone)
	require.NoError(t, err)
	assert.Equal(t, units.Tokens(300).Dec(), releasable.Dec())

	f.primary.FailTransferOut(true)
	assert.ErrorIs(t, f.swap.Release(anyone, units.Tokens(300)), vesting.ErrTransferFailed)
	f.primary.FailTransferOut(false)
	require.NoError(t, f.swap.Release(anyone, units.Tokens(300)))
	assert.Equal(t, units.Tokens(300).Dec(), f.min.BalanceOf(anyone).Dec())

	// Released tokens no longer count against the owner's withdrawable amount
	w, err := f.swap.CalculateWithdrawableMinToken(deployer)
	require.NoError(t, err)
	assert.Equal(t, units.Tokens(1_500_000-3_000).Dec(), w.Dec())

	f.clock.Set(testStart + 3600 + 600 + 1200)
	require.NoError(t, f.swap.Release(anyone, units.Tokens(2_700)))
	assert.Equal(t, units.Tokens(3_000).Dec(), f.min.BalanceOf(anyone).Dec())
	w, err = f.swap.CalculateWithdrawableMinToken(deployer)
	require.NoError(t, err)
	assert.Equal(t, units.Tokens(1_500_000-3_000).Dec(), w.Dec())
}

func TestLedger_StateRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, deployer, 10)
	f.deposit(t, anyone, 5)
	f.closeSale()
	require.False(t, f.swap.GetVestingSchedule(anyone).IsZero())

	st := f.swap.State()
	restored, err := NewLedger(f.params(), f.clock, deployer)
	require.NoError(t, err)
	require.NoError(t, restored.Restore(st))

	assert.Equal(t, Closed, restored.Phase())
	assert.Equal(t, f.swap.SaleEnd(), restored.SaleEnd())
	assert.Equal(t, units.Tokens(10).Dec(), restored.DepositOf(deployer).Dec())
	assert.Equal(t, units.Tokens(5).Dec(), restored.DepositOf(anyone).Dec())
	assert.Equal(t, units.Tokens(15).Dec(), restored.TotalDeposited().Dec())
	assert.Equal(t, []common.Address{deployer, anyone}, restored.Buyers())

	st.Deposited = units.Tokens(16)
	assert.ErrorIs(t, restored.Restore(st), vesting.ErrInvalidAmount)
}

func TestNewLedger_ReopenWithRecordedSaleEnd(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, anyone, 5)
	st := f.swap.State()

	// Past the latest moment a fresh deploy could still fit before vesting.
	f.clock.Advance(3600 - saleDuration + 1)
	_, err := NewLedger(f.params(), f.clock, deployer)
	require.ErrorIs(t, err, vesting.ErrScheduleOverlapsSale)

	p := f.params()
	p.SaleEnd = st.SaleEnd
	reopened, err := NewLedger(p, f.clock, deployer)
	require.NoError(t, err)
	require.NoError(t, reopened.Restore(st))
	assert.Equal(t, uint64(testStart+saleDuration), reopened.SaleEnd())
	assert.Equal(t, Closed, reopened.Phase())
	assert.Equal(t, units.Tokens(5).Dec(), reopened.DepositOf(anyone).Dec())

	p.SaleEnd = privateTemplate().StartTimestamp + 1
	_, err = NewLedger(p, f.clock, deployer)
	assert.ErrorIs(t, err, vesting.ErrScheduleOverlapsSale)
}
