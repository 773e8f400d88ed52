package state

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"

	"maplemarket/storage"
)

type dirtyValue struct {
	value   []byte
	deleted bool
}

type journalEntry struct {
	key      string
	prev     dirtyValue
	hadDirty bool
}

// StateDB layers an in-memory write set over the backing database. Writes
// are journaled so any suffix of them can be rolled back with
// RevertToSnapshot; nothing reaches the database until Commit.
//
// Keys are hashed with keccak256 before they touch the database, matching
// the trie layout of the rest of the ledger.
//
// StateDB is not safe for concurrent use; the vm host serializes access.
type StateDB struct {
	db      storage.Database
	dirty   map[string]dirtyValue
	journal []journalEntry
}

// New creates a state overlay on top of db.
func New(db storage.Database) *StateDB {
	return &StateDB{
		db:    db,
		dirty: make(map[string]dirtyValue),
	}
}

func hashKey(key []byte) string {
	return string(crypto.Keccak256(key))
}

// Get returns the current value stored under key, or nil when absent.
func (s *StateDB) Get(key []byte) ([]byte, error) {
	hashed := hashKey(key)
	if entry, ok := s.dirty[hashed]; ok {
		if entry.deleted {
			return nil, nil
		}
		return append([]byte(nil), entry.value...), nil
	}
	value, err := s.db.Get([]byte(hashed))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: read: %w", err)
	}
	return value, nil
}

// Put records value under key. An empty value deletes the key.
func (s *StateDB) Put(key, value []byte) {
	if len(value) == 0 {
		s.Delete(key)
		return
	}
	s.set(hashKey(key), dirtyValue{value: append([]byte(nil), value...)})
}

// Delete removes key.
func (s *StateDB) Delete(key []byte) {
	s.set(hashKey(key), dirtyValue{deleted: true})
}

func (s *StateDB) set(hashed string, next dirtyValue) {
	prev, had := s.dirty[hashed]
	s.journal = append(s.journal, journalEntry{key: hashed, prev: prev, hadDirty: had})
	s.dirty[hashed] = next
}

// Snapshot returns an identifier for the current journal position.
func (s *StateDB) Snapshot() int {
	return len(s.journal)
}

// RevertToSnapshot undoes every write made after the snapshot was taken.
func (s *StateDB) RevertToSnapshot(id int) {
	if id < 0 {
		id = 0
	}
	for i := len(s.journal) - 1; i >= id; i-- {
		entry := s.journal[i]
		if entry.hadDirty {
			s.dirty[entry.key] = entry.prev
		} else {
			delete(s.dirty, entry.key)
		}
	}
	if id < len(s.journal) {
		s.journal = s.journal[:id]
	}
}

// Discard drops all uncommitted writes.
func (s *StateDB) Discard() {
	s.dirty = make(map[string]dirtyValue)
	s.journal = s.journal[:0]
}

// Dirty reports the number of keys with uncommitted writes.
func (s *StateDB) Dirty() int {
	return len(s.dirty)
}

// Commit flushes the write set to the database in a single batch and returns
// the trie root of the written key/value pairs. Deletions are applied but do
// not contribute to the root.
func (s *StateDB) Commit() (common.Hash, error) {
	if len(s.dirty) == 0 {
		s.journal = s.journal[:0]
		return gethtypes.EmptyRootHash, nil
	}
	keys := make([]string, 0, len(s.dirty))
	for k := range s.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	batch := storage.NewBatch()
	for _, k := range keys {
		entry := s.dirty[k]
		if entry.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), entry.value)
	}
	root, err := s.writeSetRoot(keys)
	if err != nil {
		return common.Hash{}, err
	}
	if err := s.db.Write(batch); err != nil {
		return common.Hash{}, fmt.Errorf("state: commit: %w", err)
	}
	s.Discard()
	return root, nil
}

// writeSetRoot mirrors the transaction-root construction: an ephemeral trie
// over a memory database, hashed without being persisted.
func (s *StateDB) writeSetRoot(sortedKeys []string) (common.Hash, error) {
	backend := memorydb.New()
	db := rawdb.NewDatabase(backend)
	trieDB := triedb.NewDatabase(db, triedb.HashDefaults)
	tr, err := gethtrie.New(gethtrie.TrieID(gethtypes.EmptyRootHash), trieDB)
	if err != nil {
		return common.Hash{}, err
	}
	for _, k := range sortedKeys {
		entry := s.dirty[k]
		if entry.deleted || len(entry.value) == 0 {
			continue
		}
		if err := tr.Update([]byte(k), entry.value); err != nil {
			return common.Hash{}, err
		}
	}
	return tr.Hash(), nil
}
