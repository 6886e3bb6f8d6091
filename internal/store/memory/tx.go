package memory

import (
	"context"
	"maps"

	"github.com/sakif/brightminds/internal/store"
)

var _ store.Tx = (*Tx)(nil)

type pendingWrite struct {
	ref     store.Ref
	data    []byte
	deleted bool
}

// Tx buffers writes until commit and records what it read.
type Tx struct {
	s *Store

	readVersions  map[string]uint64
	readRefs      map[string]store.Ref
	queryVersions map[string]uint64

	writes map[string]pendingWrite
	order  []string
}

func newTx(s *Store) *Tx {
	return &Tx{
		s:             s,
		readVersions:  make(map[string]uint64),
		readRefs:      make(map[string]store.Ref),
		queryVersions: make(map[string]uint64),
		writes:        make(map[string]pendingWrite),
	}
}

func (tx *Tx) Get(ctx context.Context, ref store.Ref, dst any) error {
	path := ref.Path()
	if w, ok := tx.writes[path]; ok {
		if w.deleted {
			return store.ErrNoDocument
		}
		return store.Decode(ref, w.data, dst)
	}

	doc, ok := tx.s.load(ref)
	if _, seen := tx.readVersions[path]; !seen {
		tx.readVersions[path] = doc.version
		tx.readRefs[path] = ref
	}
	if !ok {
		return store.ErrNoDocument
	}
	return store.Decode(ref, doc.data, dst)
}

func (tx *Tx) Query(ctx context.Context, q store.Query) ([]store.Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	docs, version := tx.s.scan(q.Collection)
	if _, seen := tx.queryVersions[q.Collection]; !seen {
		tx.queryVersions[q.Collection] = version
	}

	merged := maps.Clone(docs)
	for _, path := range tx.order {
		w := tx.writes[path]
		if w.ref.Collection != q.Collection {
			continue
		}
		if w.deleted {
			delete(merged, w.ref.ID)
		} else {
			merged[w.ref.ID] = w.data
		}
	}
	return filter(q, merged)
}

func (tx *Tx) Set(ctx context.Context, ref store.Ref, doc any) error {
	data, err := store.Encode(doc, tx.s.clock())
	if err != nil {
		return err
	}
	tx.stage(pendingWrite{ref: ref, data: data})
	return nil
}

func (tx *Tx) Delete(ctx context.Context, ref store.Ref) error {
	tx.stage(pendingWrite{ref: ref, deleted: true})
	return nil
}

func (tx *Tx) stage(w pendingWrite) {
	path := w.ref.Path()
	if _, ok := tx.writes[path]; !ok {
		tx.order = append(tx.order, path)
	}
	tx.writes[path] = w
}
