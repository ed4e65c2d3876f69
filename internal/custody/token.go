package custody

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	// ErrTransferFailed is the root of every failed token movement.
	ErrTransferFailed = errors.New("custody: transfer failed")

	ErrInsufficientBalance   = fmt.Errorf("%w: insufficient balance", ErrTransferFailed)
	ErrInsufficientAllowance = fmt.Errorf("%w: insufficient allowance", ErrTransferFailed)
	ErrZeroAddress           = fmt.Errorf("%w: zero address", ErrTransferFailed)
	ErrSupplyOverflow        = errors.New("custody: total supply overflow")
)

// Storage layout, matching a Solidity ERC20:
//
//	slot 0: mapping(address => uint256) balances
//	slot 1: mapping(address => mapping(address => uint256)) allowances
//	slot 2: uint256 totalSupply
var (
	balancesSlot   = common.LeftPadBytes([]byte{0}, 32)
	allowancesSlot = common.LeftPadBytes([]byte{1}, 32)
	supplySlot     = common.BytesToHash([]byte{2})
)

func balanceKey(holder common.Address) common.Hash {
	return crypto.Keccak256Hash(common.LeftPadBytes(holder.Bytes(), 32), balancesSlot)
}

func allowanceKey(owner, spender common.Address) common.Hash {
	inner := crypto.Keccak256Hash(common.LeftPadBytes(owner.Bytes(), 32), allowancesSlot)
	return crypto.Keccak256Hash(common.LeftPadBytes(spender.Bytes(), 32), inner.Bytes())
}

// Token is a fungible asset whose balances live in the storage of address
// inside a shared custody State.
type Token struct {
	state   *State
	address common.Address
	name    string
	symbol  string
}

// NewToken binds a token at address to state.
func NewToken(s *State, address common.Address, name, symbol string) *Token {
	return &Token{state: s, address: address, name: name, symbol: symbol}
}

func (t *Token) Address() common.Address { return t.address }
func (t *Token) Name() string            { return t.name }
func (t *Token) Symbol() string          { return t.symbol }

// BalanceOf returns holder's balance.
func (t *Token) BalanceOf(holder common.Address) *uint256.Int {
	var v *uint256.Int
	t.state.view(func(db *state.StateDB) {
		v = readWord(db, t.address, balanceKey(holder))
	})
	return v
}

// TotalSupply returns the amount minted so far.
func (t *Token) TotalSupply() *uint256.Int {
	var v *uint256.Int
	t.state.view(func(db *state.StateDB) {
		v = readWord(db, t.address, supplySlot)
	})
	return v
}

// Allowance returns how much spender may still move out of owner's balance.
func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	var v *uint256.Int
	t.state.view(func(db *state.StateDB) {
		v = readWord(db, t.address, allowanceKey(owner, spender))
	})
	return v
}

// Mint credits amount of new supply to to.
func (t *Token) Mint(to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	return t.state.apply(func(db *state.StateDB) error {
		supply, overflow := new(uint256.Int).AddOverflow(readWord(db, t.address, supplySlot), amount)
		if overflow {
			return ErrSupplyOverflow
		}
		writeWord(db, t.address, supplySlot, supply)
		// Balance cannot overflow if the supply did not
		bal := new(uint256.Int).Add(readWord(db, t.address, balanceKey(to)), amount)
		writeWord(db, t.address, balanceKey(to), bal)
		return nil
	})
}

// Transfer moves amount from from to to.
func (t *Token) Transfer(from, to common.Address, amount *uint256.Int) error {
	return t.state.apply(func(db *state.StateDB) error {
		return t.move(db, from, to, amount)
	})
}

// Approve sets spender's allowance over owner's balance.
func (t *Token) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}
	return t.state.apply(func(db *state.StateDB) error {
		writeWord(db, t.address, allowanceKey(owner, spender), amount)
		return nil
	})
}

// TransferFrom moves amount from from to to on behalf of spender, consuming
// allowance. The allowance and balance changes commit together or not at all.
func (t *Token) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	return t.state.apply(func(db *state.StateDB) error {
		key := allowanceKey(from, spender)
		allowance := readWord(db, t.address, key)
		if allowance.Lt(amount) {
			return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance, allowance.Dec(), amount.Dec())
		}
		writeWord(db, t.address, key, new(uint256.Int).Sub(allowance, amount))
		return t.move(db, from, to, amount)
	})
}

func (t *Token) move(db *state.StateDB, from, to common.Address, amount *uint256.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}
	fromBal := readWord(db, t.address, balanceKey(from))
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, need %s", ErrInsufficientBalance, from.Hex(), fromBal.Dec(), amount.Dec())
	}
	writeWord(db, t.address, balanceKey(from), new(uint256.Int).Sub(fromBal, amount))
	toBal := readWord(db, t.address, balanceKey(to))
	writeWord(db, t.address, balanceKey(to), new(uint256.Int).Add(toBal, amount))
	return nil
}
