// Package memory is an in-process implementation of store.Store.
//
// Transactions are optimistic. A transaction records the version of every
// document it read and of every collection it queried, buffers its writes,
// and validates those versions when it commits. If another transaction
// committed a conflicting write in the meantime, the buffered writes are
// thrown away and the body runs again.
//
// The store also counts committed writes, which tests use to assert that an
// operation was a no-op.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sakif/brightminds/internal/store"
)

// DefaultMaxAttempts bounds how many times a transaction body is run.
const DefaultMaxAttempts = 5

var _ store.Store = (*Store)(nil)

type document struct {
	data    []byte
	version uint64
}

// Store keeps every collection in maps guarded by one mutex. The mutex is
// only held for individual reads and for commit, never across a body.
type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]document
	collVersion map[string]uint64
	seq         uint64

	clock       func() time.Time
	maxAttempts int

	writes  int
	commits int
}

type Option func(*Store)

// WithClock replaces time.Now as the source of server timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithMaxAttempts sets how many times a conflicting transaction is retried.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]document),
		collVersion: make(map[string]uint64),
		clock:       time.Now,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return nil }

// Writes returns the number of Set and Delete operations committed so far.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Commits returns the number of transactions that committed at least one write.
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

func (s *Store) Get(ctx context.Context, ref store.Ref, dst any) error {
	doc, ok := s.load(ref)
	if !ok {
		return store.ErrNoDocument
	}
	return store.Decode(ref, doc.data, dst)
}

func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	docs, _ := s.scan(q.Collection)
	return filter(q, docs)
}

// RunTransaction runs fn until it commits without conflict, fn fails, or the
// attempt budget is spent.
func (s *Store) RunTransaction(ctx context.Context, fn store.TxFunc) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := newTx(s)
		if err := fn(ctx, tx); err != nil {
			return err
		}
		committed, err := s.commit(tx)
		if err != nil {
			return err
		}
		if committed {
			return nil
		}
	}
	return fmt.Errorf("memory: %w after %d attempts", store.ErrTxConflict, s.maxAttempts)
}

func (s *Store) load(ref store.Ref) (document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.collections[ref.Collection][ref.ID]
	return doc, ok
}

// scan copies a collection and returns the collection version it saw.
func (s *Store) scan(collection string) (map[string][]byte, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte, len(s.collections[collection]))
	for id, doc := range s.collections[collection] {
		out[id] = doc.data
	}
	return out, s.collVersion[collection]
}

// commit validates tx's read set and applies its writes. It returns false
// when validation failed and the body must be retried.
func (s *Store) commit(tx *Tx) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for path, seen := range tx.readVersions {
		ref := tx.readRefs[path]
		if s.collections[ref.Collection][ref.ID].version != seen {
			return false, nil
		}
	}
	for collection, seen := range tx.queryVersions {
		if s.collVersion[collection] != seen {
			return false, nil
		}
	}

	if len(tx.writes) == 0 {
		return true, nil
	}
	for _, path := range tx.order {
		w := tx.writes[path]
		s.seq++
		coll := s.collections[w.ref.Collection]
		if coll == nil {
			coll = make(map[string]document)
			s.collections[w.ref.Collection] = coll
		}
		if w.deleted {
			delete(coll, w.ref.ID)
		} else {
			coll[w.ref.ID] = document{data: w.data, version: s.seq}
		}
		s.collVersion[w.ref.Collection] = s.seq
		s.writes++
	}
	s.commits++
	return true, nil
}

func filter(q store.Query, docs map[string][]byte) ([]store.Snapshot, error) {
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var out []store.Snapshot
	for _, id := range ids {
		ok, err := store.Matches(docs[id], q.Filters)
		if err != nil {
			return nil, fmt.Errorf("memory: matching %s/%s: %w", q.Collection, id, err)
		}
		if !ok {
			continue
		}
		out = append(out, store.Snapshot{Ref: store.Doc(q.Collection, id), Data: docs[id]})
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}
