// Package statedb opens the key-value database holding the custody state
// trie, its committed roots, and the ledger snapshots.
package statedb

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/log"
)

const (
	// CacheMB is the LevelDB block cache size in MB.
	CacheMB = 64

	// Handles is the maximum number of open file handles for LevelDB.
	Handles = 256
)

var ErrClosed = errors.New("statedb: database is closed")

// Database wraps an ethdb.Database with root and snapshot bookkeeping.
type Database struct {
	db     ethdb.Database
	dir    string
	mu     sync.RWMutex
	closed bool
}

// Open opens persistent LevelDB storage under dir. An empty dir opens an
// in-memory database.
func Open(dir string) (*Database, error) {
	if dir == "" {
		return OpenMemory(), nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
	}
	ldb, err := leveldb.New(filepath.Join(dir, "chaindata"), CacheMB, Handles, "", false)
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", dir, err)
	}
	log.Info("Opened persistent state storage", "dir", dir)
	return &Database{db: rawdb.NewDatabase(ldb), dir: dir}, nil
}

// OpenMemory opens a throwaway in-memory database.
func OpenMemory() *Database {
	return &Database{db: rawdb.NewMemoryDatabase()}
}

// Ethdb exposes the underlying database for trie storage.
func (d *Database) Ethdb() ethdb.Database {
	return d.db
}

// Persistent reports whether the database is backed by disk.
func (d *Database) Persistent() bool {
	return d.dir != ""
}

func rootKey(name string) []byte {
	return []byte("root:" + name)
}

func snapshotKey(name string) []byte {
	return []byte("snapshot:" + name)
}

// ReadRoot returns the last committed root stored under name.
func (d *Database) ReadRoot(name string) (common.Hash, bool, error) {
	data, ok, err := d.get(rootKey(name))
	if err != nil || !ok {
		return common.Hash{}, false, err
	}
	if len(data) != common.HashLength {
		return common.Hash{}, false, fmt.Errorf("invalid root length %d for %q", len(data), name)
	}
	return common.BytesToHash(data), true, nil
}

// WriteRoot records root as the latest committed root for name.
func (d *Database) WriteRoot(name string, root common.Hash) error {
	return d.put(rootKey(name), root.Bytes())
}

// WriteSnapshot stores v as JSON under name.
func (d *Database) WriteSnapshot(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode snapshot %q: %w", name, err)
	}
	return d.put(snapshotKey(name), data)
}

// ReadSnapshot decodes the snapshot stored under name into v. It reports
// false when no snapshot exists.
func (d *Database) ReadSnapshot(name string, v any) (bool, error) {
	data, ok, err := d.get(snapshotKey(name))
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode snapshot %q: %w", name, err)
	}
	return true, nil
}

func (d *Database) get(key []byte) ([]byte, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, false, ErrClosed
	}
	ok, err := d.db.Has(key)
	if err != nil || !ok {
		return nil, false, err
	}
	data, err := d.db.Get(key)
	if err != nil {
		return nil, false, err
	}
	// Return a copy to avoid aliasing
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func (d *Database) put(key, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return d.db.Put(key, value)
}

// Close gracefully closes the underlying database
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}
