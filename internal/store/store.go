// Package store is the document-store contract the services run on.
//
// A Store holds JSON documents addressed by a collection path and an id.
// Sub-collections are ordinary collections whose path includes the parent
// document ("classrooms/abc/assignedGames"). Every multi-document mutation
// goes through RunTransaction: the body reads, validates, and writes through
// the Tx it is given, and the store either commits all of the writes or none.
//
// Transaction bodies may run more than once. A backend that detects
// contention discards the attempt and calls the body again, so bodies must
// not have side effects outside the Tx (no network calls, no counters, no
// logging that claims success).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"time"
)

var (
	// ErrNoDocument is returned by Get when the referenced document is absent.
	ErrNoDocument = errors.New("store: no such document")
	// ErrTxConflict is returned when a transaction kept losing to concurrent
	// writers and the backend gave up retrying.
	ErrTxConflict = errors.New("store: transaction contention")
	// ErrDecode marks a document that exists but does not fit the target type.
	ErrDecode = errors.New("store: document cannot be decoded")
)

// Ref addresses one document.
type Ref struct {
	Collection string
	ID         string
}

// Doc returns a reference to id in a top-level collection.
func Doc(collection, id string) Ref {
	return Ref{Collection: collection, ID: id}
}

// Path is the full slash-separated path of the document.
func (r Ref) Path() string {
	return r.Collection + "/" + r.ID
}

// Sub returns a reference to id in the named sub-collection of r.
func (r Ref) Sub(collection, id string) Ref {
	return Ref{Collection: r.Path() + "/" + collection, ID: id}
}

// SubCollection is the collection path of the named sub-collection of r.
func (r Ref) SubCollection(collection string) string {
	return r.Path() + "/" + collection
}

func (r Ref) String() string { return r.Path() }

// Filter is a single equality condition on a top-level JSON field.
type Filter struct {
	Field string
	Value any
}

// Query selects documents of one collection matching all filters. Results
// are ordered by document id. Limit <= 0 means no limit.
type Query struct {
	Collection string
	Filters    []Filter
	Limit      int
}

// From starts a query over collection.
func From(collection string) Query {
	return Query{Collection: collection}
}

// Where returns a copy of q with an added equality filter.
func (q Query) Where(field string, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Value: value})
	return q
}

// Take returns a copy of q limited to n results.
func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate rejects queries a backend cannot run safely.
func (q Query) Validate() error {
	if q.Collection == "" {
		return errors.New("store: query has no collection")
	}
	for _, f := range q.Filters {
		if !fieldPattern.MatchString(f.Field) {
			return fmt.Errorf("store: invalid filter field %q", f.Field)
		}
	}
	return nil
}

// Snapshot is one document returned by a query.
type Snapshot struct {
	Ref  Ref
	Data []byte
}

// DataTo decodes the snapshot into dst.
func (s Snapshot) DataTo(dst any) error {
	return Decode(s.Ref, s.Data, dst)
}

// Reader is the read side shared by Store and Tx.
type Reader interface {
	// Get decodes the document at ref into dst or returns ErrNoDocument.
	Get(ctx context.Context, ref Ref, dst any) error
	// Query returns the documents matching q.
	Query(ctx context.Context, q Query) ([]Snapshot, error)
}

// Tx is a transaction-scoped view of the store. Reads observe the
// transaction's own earlier writes.
type Tx interface {
	Reader
	// Set creates or replaces the document at ref.
	Set(ctx context.Context, ref Ref, doc any) error
	// Delete removes the document at ref. Deleting an absent document is a no-op.
	Delete(ctx context.Context, ref Ref) error
}

// TxFunc is a transaction body.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is a transactional document store.
type Store interface {
	Reader
	// RunTransaction runs fn and commits its writes atomically. An error
	// returned by fn aborts the transaction and is returned unchanged.
	RunTransaction(ctx context.Context, fn TxFunc) error
	Close() error
}

// ServerTimestamper is implemented by documents with server-assigned
// timestamps. Backends call StampServerTime with their clock on every Set.
type ServerTimestamper interface {
	StampServerTime(now time.Time)
}

// Encode stamps doc (when it is a ServerTimestamper) and marshals it.
func Encode(doc any, now time.Time) ([]byte, error) {
	if st, ok := doc.(ServerTimestamper); ok {
		st.StampServerTime(now.UTC())
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("store: encoding document: %w", err)
	}
	return data, nil
}

// Decode unmarshals a stored document, tagging failures with ErrDecode.
func Decode(ref Ref, data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDecode, ref.Path(), err)
	}
	return nil
}

// Matches reports whether a stored document satisfies every filter. Values
// are compared after a JSON round trip so that 3 and 3.0 compare equal, the
// same way a JSON-aware database would compare them.
func Matches(data []byte, filters []Filter) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return false, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	for _, f := range filters {
		raw, ok := fields[f.Field]
		if !ok {
			return false, nil
		}
		want, err := json.Marshal(f.Value)
		if err != nil {
			return false, fmt.Errorf("store: encoding filter %s: %w", f.Field, err)
		}
		if !sameJSON(raw, want) {
			return false, nil
		}
	}
	return true, nil
}

func sameJSON(a, b []byte) bool {
	var va, vb any
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}
