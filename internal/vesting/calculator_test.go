package vesting

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minx-network/distribution/internal/units"
)

func testSchedule(total *uint256.Int, tge, start, cliff, duration, slice uint64) *Schedule {
	return &Schedule{
		TGEPermille:        tge,
		Beneficiary:        common.HexToAddress("0xA11CE"),
		StartTimestamp:     start,
		CliffDuration:      cliff,
		VestingDuration:    duration,
		SlicePeriodSeconds: slice,
		TotalAmount:        total,
		ReleasedAmount:     new(uint256.Int),
	}
}

func TestReleasable_StartCliffAndSlices(t *testing.T) {
	s := testSchedule(units.Tokens(1000), 100, 1000, 600, 1200, 120)

	tests := []struct {
		name string
		now  uint64
		want *uint256.Int
	}{
		{"before start", 999, new(uint256.Int)},
		{"at start", 1000, units.Tokens(100)},
		{"just before cliff", 1599, units.Tokens(100)},
		{"at cliff", 1600, units.Tokens(100)},
		{"inside first slice", 1719, units.Tokens(100)},
		{"first slice", 1720, units.Tokens(190)},
		{"six slices", 2320, units.Tokens(640)},
		{"end", 2800, units.Tokens(1000)},
		{"long after end", 1 << 40, units.Tokens(1000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Releasable(s, tt.now)
			assert.Equal(t, tt.want.Dec(), got.Dec())
		})
	}
}

func TestReleasable_NoTGE(t *testing.T) {
	s := testSchedule(units.Tokens(1000), 0, 0, 600, 1200, 120)
	assert.True(t, Releasable(s, 599).IsZero())
	assert.Equal(t, units.Tokens(600).Dec(), Releasable(s, 600+720).Dec())
}

func TestReleasable_TruncatesEachStep(t *testing.T) {
	// tge = 1000*333/1000 = 333, remaining 667 over 7 seconds in 2 second slices
	s := testSchedule(uint256.NewInt(1000), 333, 0, 0, 7, 2)

	assert.Equal(t, uint64(333), Releasable(s, 1).Uint64())
	assert.Equal(t, uint64(333+190), Releasable(s, 3).Uint64(), "667*2/7 truncates to 190")
	assert.Equal(t, uint64(333+571), Releasable(s, 6).Uint64(), "667*6/7 truncates to 571")
	assert.Equal(t, uint64(1000), Releasable(s, 7).Uint64(), "full amount once the duration has elapsed")
}

func TestReleasable_SubtractsReleased(t *testing.T) {
	s := testSchedule(units.Tokens(1000), 100, 0, 600, 1200, 120)
	s.ReleasedAmount = units.Tokens(60)
	assert.Equal(t, units.Tokens(40).Dec(), Releasable(s, 10).Dec())

	// Released beyond the TGE before the cliff clamps to zero
	s.ReleasedAmount = units.Tokens(150)
	assert.True(t, Releasable(s, 10).IsZero())
	assert.Equal(t, units.Tokens(100).Dec(), Vested(s, 10).Dec())

	s.ReleasedAmount = units.Tokens(1000)
	assert.True(t, Releasable(s, 1<<40).IsZero())
}

func TestReleasable_FullTGE(t *testing.T) {
	s := testSchedule(units.Tokens(50), 1000, 100, 0, 10, 10)
	assert.Equal(t, units.Tokens(50).Dec(), Releasable(s, 100).Dec())
	assert.Equal(t, units.Tokens(50).Dec(), Releasable(s, 105).Dec())
}

func TestReleasable_LargeAmountsDoNotWrap(t *testing.T) {
	maxTotal := new(uint256.Int).SetAllOne()
	s := testSchedule(maxTotal, 0, 0, 0, 1<<62, 1)
	got := Releasable(s, 1<<61)
	want := new(uint256.Int).Rsh(maxTotal, 1)
	assert.Equal(t, want.Dec(), got.Dec())
}

func TestSchedule_Validate(t *testing.T) {
	valid := func() *Schedule { return testSchedule(units.Tokens(1), 100, 0, 0, 100, 10) }

	tests := []struct {
		name   string
		mutate func(s *Schedule)
		want   error
	}{
		{"valid", func(*Schedule) {}, nil},
		{"null beneficiary", func(s *Schedule) { s.Beneficiary = common.Address{} }, ErrInvalidBeneficiary},
		{"zero total", func(s *Schedule) { s.TotalAmount = new(uint256.Int) }, ErrInvalidAmount},
		{"nil total", func(s *Schedule) { s.TotalAmount = nil }, ErrInvalidAmount},
		{"zero slice", func(s *Schedule) { s.SlicePeriodSeconds = 0 }, ErrInvalidSlice},
		{"zero duration", func(s *Schedule) { s.VestingDuration = 0 }, ErrInvalidDuration},
		{"duration below slice", func(s *Schedule) { s.VestingDuration = 5 }, ErrInvalidDuration},
		{"end overflows", func(s *Schedule) { s.StartTimestamp = ^uint64(0) - 50 }, ErrInvalidDuration},
		{"tge above 100%", func(s *Schedule) { s.TGEPermille = 1001 }, ErrInvalidAmount},
		{"released above total", func(s *Schedule) { s.ReleasedAmount = units.Tokens(2) }, ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := s.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSchedule_CloneIsDeep(t *testing.T) {
	s := testSchedule(units.Tokens(5), 0, 0, 0, 10, 1)
	cpy := s.Clone()
	cpy.TotalAmount.SetUint64(1)
	cpy.ReleasedAmount.SetUint64(1)
	assert.Equal(t, units.Tokens(5).Dec(), s.TotalAmount.Dec())
	assert.True(t, s.ReleasedAmount.IsZero())

	assert.True(t, Empty().IsZero())
	assert.False(t, s.IsZero())
}

func TestCode(t *testing.T) {
	assert.Equal(t, "ExceedsReleasable", Code(ErrExceedsReleasable))
	assert.Equal(t, "Unauthorized", Code(ErrUnauthorized))
	assert.Equal(t, "", Code(nil))
	assert.Equal(t, "", Code(assert.AnError))
}

func TestReleasable_SweepNeverExceedsTotal(t *testing.T) {
	// Odd sizes so no division is exact; the duration is not a slice multiple.
	total := new(uint256.Int).Add(units.Tokens(1_000), uint256.NewInt(7))
	s := testSchedule(total, 77, 1013, 97, 1009, 37)
	end := s.CliffEnd() + s.VestingDuration

	prev := new(uint256.Int)
	for now := s.StartTimestamp - 1; now <= end+s.SlicePeriodSeconds; now++ {
		vested := Vested(s, now)
		require.False(t, vested.Lt(prev), "vested went down at %d", now)
		prev = vested

		releasable := Releasable(s, now)
		sum := new(uint256.Int).Add(releasable, s.ReleasedAmount)
		require.False(t, sum.Gt(total), "releasable + released exceeds total at %d", now)
		require.Equal(t, vested.Dec(), sum.Dec(), "at %d", now)

		// Claim half of what is free every few seconds.
		if now%13 == 0 {
			claim := new(uint256.Int).Rsh(releasable, 1)
			s.ReleasedAmount = new(uint256.Int).Add(s.ReleasedAmount, claim)
		}
	}
	assert.Equal(t, total.Dec(), prev.Dec())
	assert.Equal(t, total.Dec(), new(uint256.Int).Add(Releasable(s, end), s.ReleasedAmount).Dec())
}
