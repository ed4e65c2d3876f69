package custody

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/holiman/uint256"

	"github.com/minx-network/distribution/internal/statedb"
)

// rootName is the key the committed custody root is recorded under.
const rootName = "custody"

// State wraps geth's StateDB holding the storage of every token contract.
// All reads and writes are serialised by mu.
type State struct {
	mu       sync.Mutex
	db       *statedb.Database
	trieDB   *triedb.Database
	sdb      state.Database
	stateDB  *state.StateDB
	root     common.Hash
	blockNum uint64
}

// NewState opens the custody state at the last committed root in db, or an
// empty state if nothing was committed yet.
func NewState(db *statedb.Database) (*State, error) {
	root, ok, err := db.ReadRoot(rootName)
	if err != nil {
		return nil, fmt.Errorf("read custody root: %w", err)
	}
	if !ok {
		root = types.EmptyRootHash
	}

	tdb := triedb.NewDatabase(db.Ethdb(), nil)
	sdb := state.NewDatabase(tdb, nil)
	stateDB, err := state.New(root, sdb)
	if err != nil {
		return nil, fmt.Errorf("open custody state at %s: %w", root.Hex(), err)
	}

	return &State{
		db:      db,
		trieDB:  tdb,
		sdb:     sdb,
		stateDB: stateDB,
		root:    root,
	}, nil
}

// NewMemoryState creates an empty in-memory custody state (for testing)
func NewMemoryState() *State {
	s, err := NewState(statedb.OpenMemory())
	if err != nil {
		// An empty memory database always opens
		panic(err)
	}
	return s
}

// Root returns the last committed state root.
func (s *State) Root() common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// Commit flushes pending changes to the database and returns the new root.
func (s *State) Commit() (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blockNum++
	root, err := s.stateDB.Commit(s.blockNum, false, false)
	if err != nil {
		return common.Hash{}, fmt.Errorf("commit custody state: %w", err)
	}
	if err := s.trieDB.Commit(root, false); err != nil {
		return common.Hash{}, fmt.Errorf("flush custody trie: %w", err)
	}

	// Recreate StateDB at the new root so cached tries aren't reused after commit
	stateDB, err := state.New(root, s.sdb)
	if err != nil {
		log.Error("Failed to reload custody state", "root", root, "err", err)
		return common.Hash{}, err
	}
	if err := s.db.WriteRoot(rootName, root); err != nil {
		return common.Hash{}, fmt.Errorf("record custody root: %w", err)
	}
	s.stateDB = stateDB
	s.root = root
	return root, nil
}

// apply runs fn inside a state snapshot. If fn fails every write it made is
// reverted, so each call is all-or-nothing.
func (s *State) apply(fn func(db *state.StateDB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.stateDB.Snapshot()
	if err := fn(s.stateDB); err != nil {
		s.stateDB.RevertToSnapshot(snap)
		return err
	}
	s.stateDB.Finalise(false)
	return nil
}

// view runs a read-only fn against the current state.
func (s *State) view(fn func(db *state.StateDB)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.stateDB)
}

func readWord(db *state.StateDB, addr common.Address, slot common.Hash) *uint256.Int {
	word := db.GetState(addr, slot)
	return new(uint256.Int).SetBytes32(word[:])
}

func writeWord(db *state.StateDB, addr common.Address, slot common.Hash, v *uint256.Int) {
	// A bare storage-only account would be pruned as empty; the nonce keeps
	// the token account alive across commits.
	if db.GetNonce(addr) == 0 {
		db.SetNonce(addr, 1, tracing.NonceChangeUnspecified)
	}
	db.SetState(addr, slot, common.Hash(v.Bytes32()))
}
