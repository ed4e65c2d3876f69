package vesting

import (
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PermilleBase is the denominator of TGEPermille.
const PermilleBase = 1000

// Schedule is the vesting state of one beneficiary. Timestamps and durations
// are unix seconds, amounts are 18-decimal base units.
type Schedule struct {
	TGEPermille        uint64         `json:"tgePermille"`
	Beneficiary        common.Address `json:"beneficiary"`
	StartTimestamp     uint64         `json:"startTimestamp"`
	CliffDuration      uint64         `json:"cliffDuration"`
	VestingDuration    uint64         `json:"vestingDuration"`
	SlicePeriodSeconds uint64         `json:"slicePeriodSeconds"`
	TotalAmount        *uint256.Int   `json:"totalAmount"`
	ReleasedAmount     *uint256.Int   `json:"releasedAmount"`
}

// Validate checks a schedule before it is admitted to a ledger.
func (s *Schedule) Validate() error {
	if s.Beneficiary == (common.Address{}) {
		return ErrInvalidBeneficiary
	}
	if s.TotalAmount == nil || s.TotalAmount.IsZero() {
		return fmt.Errorf("%w: total amount is zero", ErrInvalidAmount)
	}
	if err := s.ValidateTemplate(); err != nil {
		return err
	}
	if s.ReleasedAmount != nil && s.ReleasedAmount.Gt(s.TotalAmount) {
		return fmt.Errorf("%w: released %s exceeds total %s", ErrInvalidAmount, s.ReleasedAmount.Dec(), s.TotalAmount.Dec())
	}
	return nil
}

// ValidateTemplate checks only the timing and TGE parameters, which is all a
// shared sale template carries.
func (s *Schedule) ValidateTemplate() error {
	if s.SlicePeriodSeconds == 0 {
		return ErrInvalidSlice
	}
	if s.VestingDuration == 0 {
		return fmt.Errorf("%w: duration is zero", ErrInvalidDuration)
	}
	if s.VestingDuration < s.SlicePeriodSeconds {
		return fmt.Errorf("%w: duration %d shorter than slice %d", ErrInvalidDuration, s.VestingDuration, s.SlicePeriodSeconds)
	}
	if s.StartTimestamp > math.MaxUint64-s.CliffDuration ||
		s.StartTimestamp+s.CliffDuration > math.MaxUint64-s.VestingDuration {
		return fmt.Errorf("%w: schedule end overflows", ErrInvalidDuration)
	}
	if s.TGEPermille > PermilleBase {
		return fmt.Errorf("%w: tge permille %d above %d", ErrInvalidAmount, s.TGEPermille, PermilleBase)
	}
	return nil
}

// CliffEnd is the first second of linear vesting.
func (s *Schedule) CliffEnd() uint64 {
	return s.StartTimestamp + s.CliffDuration
}

// End is the second at which the whole amount is vested.
func (s *Schedule) End() uint64 {
	return s.CliffEnd() + s.VestingDuration
}

// Outstanding is the amount committed to the beneficiary but not yet paid.
func (s *Schedule) Outstanding() *uint256.Int {
	total, released := amountOrZero(s.TotalAmount), amountOrZero(s.ReleasedAmount)
	if released.Gt(total) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(total, released)
}

// IsZero reports whether s is the empty schedule returned for identities
// without an entitlement.
func (s *Schedule) IsZero() bool {
	return s.Beneficiary == (common.Address{})
}

// Clone returns a deep copy with nil amounts replaced by zero.
func (s *Schedule) Clone() *Schedule {
	cpy := *s
	cpy.TotalAmount = amountOrZero(s.TotalAmount).Clone()
	cpy.ReleasedAmount = amountOrZero(s.ReleasedAmount).Clone()
	return &cpy
}

// FromTemplate builds the schedule of one beneficiary on a shared template.
func FromTemplate(tmpl *Schedule, beneficiary common.Address, total *uint256.Int) *Schedule {
	return &Schedule{
		TGEPermille:        tmpl.TGEPermille,
		Beneficiary:        beneficiary,
		StartTimestamp:     tmpl.StartTimestamp,
		CliffDuration:      tmpl.CliffDuration,
		VestingDuration:    tmpl.VestingDuration,
		SlicePeriodSeconds: tmpl.SlicePeriodSeconds,
		TotalAmount:        total.Clone(),
		ReleasedAmount:     new(uint256.Int),
	}
}

// Empty returns the zero schedule.
func Empty() *Schedule {
	return &Schedule{TotalAmount: new(uint256.Int), ReleasedAmount: new(uint256.Int)}
}

var zero = new(uint256.Int)

func amountOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return zero
	}
	return v
}
