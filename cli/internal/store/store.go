// Package store persists translations made by the CLI so that repeated
// translations of a query can be listed and inspected across runs.
package store

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const prefix = "tr:"

// Entry is one stored translation.
type Entry struct {
	Key         string    `json:"key"`
	Query       string    `json:"query"`
	SQL         string    `json:"sql"`
	Nested      []string  `json:"nested,omitempty"`
	Cardinality string    `json:"cardinality"`
	Hits        int64     `json:"hits"`
	FirstSeen   time.Time `json:"firstSeen"`
	LastSeen    time.Time `json:"lastSeen"`
}

// Stats summarizes the store.
type Stats struct {
	Entries int
	Hits    int64
	Dir     string
}

// Store is a translation store backed by BadgerDB
type Store struct {
	db  *badger.DB
	dir string
	now func() time.Time
}

// Open opens the store in dir. An empty dir opens an in-memory store.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &Store{db: db, dir: dir, now: time.Now}, nil
}

// Record stores e under e.Key, or bumps the hit count of the existing entry.
// It reports whether the entry already existed.
func (s *Store) Record(e Entry) (bool, error) {
	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(prefix + e.Key)
		now := s.now()
		e.Hits = 1
		e.FirstSeen = now
		e.LastSeen = now

		item, err := txn.Get(key)
		switch {
		case err == nil:
			existed = true
			var prev Entry
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &prev) }); err != nil {
				return err
			}
			e.Hits = prev.Hits + 1
			e.FirstSeen = prev.FirstSeen
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		val, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return txn.Set(key, val)
	})
	return existed, err
}

// Get returns the entry stored under key, or nil.
func (s *Store) Get(key string) (*Entry, error) {
	var out *Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = &Entry{}
			return json.Unmarshal(val, out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	return out, err
}

// List returns every entry, most used first.
func (s *Store) List() ([]Entry, error) {
	var out []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var e Entry
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Hits != out[j].Hits {
			return out[i].Hits > out[j].Hits
		}
		return out[i].Key < out[j].Key
	})
	return out, err
}

// Stats counts the stored entries and their hits.
func (s *Store) Stats() (Stats, error) {
	entries, err := s.List()
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Entries: len(entries), Dir: s.dir}
	for _, e := range entries {
		st.Hits += e.Hits
	}
	return st, nil
}

// Clear removes every entry.
func (s *Store) Clear() error {
	return s.db.DropPrefix([]byte(prefix))
}

// Close closes the store
func (s *Store) Close() error {
	return s.db.Close()
}
