// Package clock provides the monotonically non-decreasing time source the
// ledgers evaluate schedules and sale windows against.
package clock

import (
	"errors"
	"math"
	"sync"
	"time"
)

// ErrOverflow is returned when an advance would pass the largest
// representable timestamp.
var ErrOverflow = errors.New("clock: advance overflows timestamp")

// Clock returns the current time as unix seconds.
type Clock interface {
	Now() uint64
}

// System reads the wall clock.
type System struct{}

func (System) Now() uint64 {
	return uint64(time.Now().Unix())
}

// Manual is a settable clock for tests and local runs, the equivalent of a
// development chain's time.increase. It never moves backwards.
type Manual struct {
	mu  sync.RWMutex
	now uint64
}

// NewManual creates a manual clock starting at start.
func NewManual(start uint64) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Advance moves the clock forward by seconds and returns the new time. The
// clock stops at math.MaxUint64.
func (m *Manual) Advance(seconds uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seconds > math.MaxUint64-m.now {
		m.now = math.MaxUint64
	} else {
		m.now += seconds
	}
	return m.now
}

// TryAdvance is Advance that leaves the clock untouched and fails with
// ErrOverflow instead of saturating.
func (m *Manual) TryAdvance(seconds uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seconds > math.MaxUint64-m.now {
		return m.now, ErrOverflow
	}
	m.now += seconds
	return m.now, nil
}

// Set moves the clock to ts. Earlier timestamps are ignored.
func (m *Manual) Set(ts uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts > m.now {
		m.now = ts
	}
	return m.now
}
