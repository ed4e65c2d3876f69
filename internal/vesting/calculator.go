package vesting

import "github.com/holiman/uint256"

var permilleBase = uint256.NewInt(PermilleBase)

// TGEAmount is the part of the total unlocked at the start timestamp.
func TGEAmount(s *Schedule) *uint256.Int {
	total := amountOrZero(s.TotalAmount)
	permille := s.TGEPermille
	if permille > PermilleBase {
		permille = PermilleBase
	}
	tge, _ := new(uint256.Int).MulDivOverflow(total, uint256.NewInt(permille), permilleBase)
	return tge
}

// Vested returns the amount unlocked by now regardless of what has been
// released. Each division truncates on its own.
func Vested(s *Schedule, now uint64) *uint256.Int {
	if now < s.StartTimestamp {
		return new(uint256.Int)
	}
	tge := TGEAmount(s)
	if now < s.CliffEnd() {
		return tge
	}

	total := amountOrZero(s.TotalAmount)
	elapsed := now - s.CliffEnd()
	if elapsed >= s.VestingDuration || s.SlicePeriodSeconds == 0 {
		return total.Clone()
	}

	vestedSeconds := (elapsed / s.SlicePeriodSeconds) * s.SlicePeriodSeconds
	remaining := new(uint256.Int).Sub(total, tge)
	// (total - tge) * slices * slice fits in 512 bits so the product never wraps
	linear, _ := new(uint256.Int).MulDivOverflow(remaining, uint256.NewInt(vestedSeconds), uint256.NewInt(s.VestingDuration))
	return linear.Add(linear, tge)
}

// Releasable returns what the beneficiary may claim at now, never negative.
func Releasable(s *Schedule, now uint64) *uint256.Int {
	vested := Vested(s, now)
	released := amountOrZero(s.ReleasedAmount)
	if !vested.Gt(released) {
		return new(uint256.Int)
	}
	return vested.Sub(vested, released)
}
