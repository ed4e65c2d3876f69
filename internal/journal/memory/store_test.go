package memory

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minx-network/distribution/internal/journal"
)

var (
	alice = common.HexToAddress("0xA11CE")
	bob   = common.HexToAddress("0xB0B")
)

func TestStore_AppendAndList(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, []journal.Event{
		journal.NewEvent("vesting", journal.KindScheduleAdded, alice, uint256.NewInt(10), 1),
		journal.NewEvent("vesting", journal.KindTokensReleased, alice, uint256.NewInt(3), 2),
		journal.NewEvent("swap", journal.KindDeposited, bob, uint256.NewInt(7), 3),
	}))
	assert.Equal(t, 3, s.Len())

	all, err := s.List(ctx, journal.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, journal.KindDeposited, all[0].Kind, "newest first")

	vesting, err := s.List(ctx, journal.Filter{Ledger: "vesting"})
	require.NoError(t, err)
	assert.Len(t, vesting, 2)

	released, err := s.List(ctx, journal.Filter{Kind: journal.KindTokensReleased, Account: alice})
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, uint64(3), released[0].Amount.Uint64())

	limited, err := s.List(ctx, journal.Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_RejectsInvalidBatch(t *testing.T) {
	s := NewStore()
	good := journal.NewEvent("sale", journal.KindBeneficiaryAdded, alice, uint256.NewInt(1), 1)
	bad := journal.Event{Ledger: "sale", Kind: journal.KindBeneficiaryAdded}

	err := s.Append(context.Background(), []journal.Event{good, bad})
	assert.ErrorIs(t, err, journal.ErrInvalidInput)
	assert.Equal(t, 0, s.Len(), "batch is all or nothing")
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, []journal.Event{
		journal.NewEvent("sale", journal.KindTokensWithdrawn, alice, uint256.NewInt(5), 1),
	}))

	got, err := s.List(ctx, journal.Filter{})
	require.NoError(t, err)
	got[0].Amount.SetUint64(999)

	again, err := s.List(ctx, journal.Filter{})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), again[0].Amount.Uint64())
}

func TestStore_Record(t *testing.T) {
	s := NewStore()
	var rec journal.Recorder = s

	rec.Record(journal.NewEvent("swap", journal.KindDepositWithdrawn, bob, uint256.NewInt(2), 5))
	rec.Record(journal.Event{})

	events := s.Events()
	require.Len(t, events, 1, "invalid events are skipped")
	assert.Equal(t, journal.KindDepositWithdrawn, events[0].Kind)
}
