// Package custody holds the fungible assets the ledgers account for.
//
// Token balances are kept in a go-ethereum StateDB using the storage layout
// of a Solidity ERC20, and every token movement runs inside a state snapshot
// that is reverted on failure. A Vault binds one token to the address a
// ledger holds its funds under.
package custody

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Custody is the transfer capability a ledger is given over one asset.
// Transfers either fully succeed or fully fail.
type Custody interface {
	// Asset identifies the token being held.
	Asset() common.Address
	// Holder is the address the ledger's funds are held under.
	Holder() common.Address
	BalanceOf(holder common.Address) *uint256.Int
	// TransferIn pulls amount from from into the holder. from must have
	// approved the holder beforehand.
	TransferIn(from common.Address, amount *uint256.Int) error
	// TransferOut pays amount from the holder to to.
	TransferOut(to common.Address, amount *uint256.Int) error
}

// Vault is the Custody of a single token held at a fixed address.
type Vault struct {
	token  *Token
	holder common.Address
}

// NewVault creates a vault holding token at holder.
func NewVault(token *Token, holder common.Address) *Vault {
	return &Vault{token: token, holder: holder}
}

var _ Custody = (*Vault)(nil)

func (v *Vault) Asset() common.Address  { return v.token.Address() }
func (v *Vault) Holder() common.Address { return v.holder }

// Token returns the token the vault holds.
func (v *Vault) Token() *Token { return v.token }

func (v *Vault) BalanceOf(holder common.Address) *uint256.Int {
	return v.token.BalanceOf(holder)
}

// Balance returns the vault's own balance.
func (v *Vault) Balance() *uint256.Int {
	return v.token.BalanceOf(v.holder)
}

func (v *Vault) TransferIn(from common.Address, amount *uint256.Int) error {
	return v.token.TransferFrom(v.holder, from, v.holder, amount)
}

func (v *Vault) TransferOut(to common.Address, amount *uint256.Int) error {
	return v.token.Transfer(v.holder, to, amount)
}
