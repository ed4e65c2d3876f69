// Package journal records the events the ledgers emit on every successful
// mutation and persists them through a Store.
package journal

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Kind names what happened.
type Kind string

const (
	KindScheduleAdded      Kind = "schedule_added"
	KindBeneficiaryAdded   Kind = "beneficiary_added"
	KindTokensReleased     Kind = "tokens_released"
	KindTokensWithdrawn    Kind = "tokens_withdrawn"
	KindDeposited          Kind = "deposited"
	KindDepositWithdrawn   Kind = "deposit_withdrawn"
	KindSwapTokenWithdrawn Kind = "swap_token_withdrawn"
)

var (
	ErrInvalidInput = errors.New("journal: invalid input")
	ErrClosed       = errors.New("journal: writer closed")
)

// Event is one ledger mutation.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Ledger    string         `json:"ledger"`
	Kind      Kind           `json:"kind"`
	Account   common.Address `json:"account"`
	Amount    *uint256.Int   `json:"amount"`
	Timestamp uint64         `json:"timestamp"`
}

// NewEvent stamps a fresh id on an event.
func NewEvent(ledger string, kind Kind, account common.Address, amount *uint256.Int, ts uint64) Event {
	return Event{
		ID:        uuid.New(),
		Ledger:    ledger,
		Kind:      kind,
		Account:   account,
		Amount:    amount.Clone(),
		Timestamp: ts,
	}
}

// Validate checks the fields every store relies on.
func (e *Event) Validate() error {
	if e.ID == uuid.Nil || e.Ledger == "" || e.Kind == "" || e.Amount == nil {
		return ErrInvalidInput
	}
	return nil
}

// Recorder accepts events from the ledgers. Record must not block.
type Recorder interface {
	Record(Event)
}

// Discard drops every event.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(Event) {}

// Filter selects events. Zero fields match everything.
type Filter struct {
	Ledger  string
	Kind    Kind
	Account common.Address
	Limit   int
}

// Matches reports whether e satisfies f, ignoring Limit.
func (f Filter) Matches(e *Event) bool {
	if f.Ledger != "" && e.Ledger != f.Ledger {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Account != (common.Address{}) && e.Account != f.Account {
		return false
	}
	return true
}

// Store persists events. Append is atomic: the whole batch is stored or
// none of it is.
type Store interface {
	Append(ctx context.Context, events []Event) error
	List(ctx context.Context, f Filter) ([]Event, error)
	Close() error
}
