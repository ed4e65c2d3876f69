package access

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	nonOwner = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func TestOwnable_CheckOwner(t *testing.T) {
	o := NewOwnable(owner)
	assert.NoError(t, o.CheckOwner(owner))
	assert.ErrorIs(t, o.CheckOwner(nonOwner), ErrUnauthorized)
	assert.ErrorIs(t, o.CheckOwner(common.Address{}), ErrUnauthorized)
}

func TestOwnable_TransferOwnership(t *testing.T) {
	o := NewOwnable(owner)

	err := o.TransferOwnership(nonOwner, nonOwner)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, owner, o.Owner())

	require.NoError(t, o.TransferOwnership(owner, nonOwner))
	assert.True(t, o.IsOwner(nonOwner))
	assert.False(t, o.IsOwner(owner))

	// Renounce
	require.NoError(t, o.TransferOwnership(nonOwner, common.Address{}))
	assert.False(t, o.IsOwner(common.Address{}))
}
