package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"

	"github.com/minx-network/distribution/internal/journal"
)

// ErrDuplicateEvent is returned when an event id is already stored.
var ErrDuplicateEvent = errors.New("journal: duplicate event")

// Store implements journal.Store on a Pool.
type Store struct {
	pool *Pool
}

var _ journal.Store = (*Store)(nil)

func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

const insertEvent = `
	INSERT INTO ledger_events (id, ledger, kind, account, amount, event_time)
	VALUES ($1::uuid, $2, $3, $4, $5::numeric, $6)
`

// Append inserts the batch in one transaction.
func (s *Store) Append(ctx context.Context, events []journal.Event) error {
	if len(events) == 0 {
		return nil
	}
	for i := range events {
		if err := events[i].Validate(); err != nil {
			return err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(insertEvent,
			e.ID.String(),
			e.Ledger,
			string(e.Kind),
			e.Account.Hex(),
			e.Amount.Dec(),
			int64(e.Timestamp),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("insert events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// List returns matching events, newest first.
func (s *Store) List(ctx context.Context, f journal.Filter) ([]journal.Event, error) {
	var (
		where []string
		args  []any
	)
	if f.Ledger != "" {
		args = append(args, f.Ledger)
		where = append(where, fmt.Sprintf("ledger = $%d", len(args)))
	}
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if f.Account != (common.Address{}) {
		args = append(args, f.Account.Hex())
		where = append(where, fmt.Sprintf("account = $%d", len(args)))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT id::text, ledger, kind, account, amount::text, event_time FROM ledger_events`)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY seq DESC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := make([]journal.Event, 0)
	for rows.Next() {
		var (
			id, ledger, kind, account, amount string
			ts                                int64
		)
		if err := rows.Scan(&id, &ledger, &kind, &account, &amount, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e, err := decodeEvent(id, ledger, kind, account, amount, ts)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func decodeEvent(id, ledger, kind, account, amount string, ts int64) (journal.Event, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return journal.Event{}, fmt.Errorf("decode event id %q: %w", id, err)
	}
	amt, err := uint256.FromDecimal(amount)
	if err != nil {
		return journal.Event{}, fmt.Errorf("decode event amount %q: %w", amount, err)
	}
	return journal.Event{
		ID:        uid,
		Ledger:    ledger,
		Kind:      journal.Kind(kind),
		Account:   common.HexToAddress(account),
		Amount:    amt,
		Timestamp: uint64(ts),
	}, nil
}
