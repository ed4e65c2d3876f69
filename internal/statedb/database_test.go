package statedb

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestDatabase_InMemory(t *testing.T) {
	db, err := Open("")
	require.NoError(t, err)
	defer db.Close()
	assert.False(t, db.Persistent())

	_, ok, err := db.ReadRoot("custody")
	require.NoError(t, err)
	assert.False(t, ok, "no root before first write")

	root := common.HexToHash("0xabcdef")
	require.NoError(t, db.WriteRoot("custody", root))
	got, ok, err := db.ReadRoot("custody")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, root, got)
}

func TestDatabase_Snapshots(t *testing.T) {
	db := OpenMemory()
	defer db.Close()

	var out sample
	ok, err := db.ReadSnapshot("vesting", &out)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.WriteSnapshot("vesting", sample{Name: "a", Count: 3}))
	ok, err = db.ReadSnapshot("vesting", &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, sample{Name: "a", Count: 3}, out)
}

func TestDatabase_PersistentReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	root := common.HexToHash("0x1234")

	db, err := Open(dir)
	require.NoError(t, err)
	assert.True(t, db.Persistent())
	require.NoError(t, db.WriteRoot("custody", root))
	require.NoError(t, db.WriteSnapshot("sale", sample{Name: "strategic", Count: 1}))
	require.NoError(t, db.Close())

	db, err = Open(dir)
	require.NoError(t, err)
	defer db.Close()

	got, ok, err := db.ReadRoot("custody")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, root, got)

	var out sample
	ok, err = db.ReadSnapshot("sale", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "strategic", out.Name)
}

func TestDatabase_Closed(t *testing.T) {
	db := OpenMemory()
	require.NoError(t, db.Close())
	require.NoError(t, db.Close(), "Close is idempotent")

	assert.ErrorIs(t, db.WriteRoot("custody", common.Hash{}), ErrClosed)
	_, _, err := db.ReadRoot("custody")
	assert.ErrorIs(t, err, ErrClosed)
}
