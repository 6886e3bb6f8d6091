// Package storetest holds behaviour tests shared by every store.Store backend.
//
// Each backend's _test.go calls Run with a constructor:
//
//	func TestContract(t *testing.T) {
//		storetest.Run(t, func(t *testing.T, clock func() time.Time) store.Store { ... })
//	}
package storetest

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/sakif/brightminds/internal/store"
)

// Factory builds an empty store whose server clock is clock.
type Factory func(t *testing.T, clock func() time.Time) store.Store

// Item is a small document used by the shared tests.
type Item struct {
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	Count     int       `json:"count"`
	Active    bool      `json:"active"`
	StampedAt time.Time `json:"stampedAt"`
}

func (i *Item) StampServerTime(now time.Time) { i.StampedAt = now }

var errAbort = errors.New("abort")

// Run executes every shared test against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	clock := func() time.Time { return fixed }

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t, clock)
		var it Item
		err := s.Get(context.Background(), store.Doc("items", "nope"), &it)
		if !errors.Is(err, store.ErrNoDocument) {
			t.Fatalf("Get() error = %v, want ErrNoDocument", err)
		}
	})

	t.Run("SetThenGet_StampsServerTime", func(t *testing.T) {
		s := newStore(t, clock)
		ctx := context.Background()
		ref := store.Doc("items", "a")

		err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.Set(ctx, ref, &Item{Name: "apple", Count: 2})
		})
		if err != nil {
			t.Fatalf("RunTransaction() error = %v", err)
		}

		var got Item
		if err := s.Get(ctx, ref, &got); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Name != "apple" || got.Count != 2 {
			t.Errorf("Get() = %+v", got)
		}
		if !got.StampedAt.Equal(fixed) {
			t.Errorf("StampedAt = %v, want %v", got.StampedAt, fixed)
		}
	})

	t.Run("ReadYourWrites", func(t *testing.T) {
		s := newStore(t, clock)
		ctx := context.Background()
		ref := store.Doc("items", "a")

		err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			if err := tx.Set(ctx, ref, &Item{Name: "first", Owner: "u1"}); err != nil {
				return err
			}
			var it Item
			if err := tx.Get(ctx, ref, &it); err != nil {
				return err
			}
			if it.Name != "first" {
				t.Errorf("tx.Get() Name = %q, want first", it.Name)
			}
			snaps, err := tx.Query(ctx, store.From("items").Where("owner", "u1"))
			if err != nil {
				return err
			}
			if len(snaps) != 1 {
				t.Errorf("tx.Query() returned %d docs, want 1", len(snaps))
			}
			return nil
		})
		if err != nil {
			t.Fatalf("RunTransaction() error = %v", err)
		}
	})

	t.Run("BodyErrorRollsBack", func(t *testing.T) {
		s := newStore(t, clock)
		ctx := context.Background()

		err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			if err := tx.Set(ctx, store.Doc("items", "a"), &Item{Name: "a"}); err != nil {
				return err
			}
			if err := tx.Set(ctx, store.Doc("items", "b"), &Item{Name: "b"}); err != nil {
				return err
			}
			return errAbort
		})
		if !errors.Is(err, errAbort) {
			t.Fatalf("RunTransaction() error = %v, want errAbort", err)
		}

		for _, id := range []string{"a", "b"} {
			var it Item
			if err := s.Get(ctx, store.Doc("items", id), &it); !errors.Is(err, store.ErrNoDocument) {
				t.Errorf("Get(%s) error = %v, want ErrNoDocument after rollback", id, err)
			}
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t, clock)
		ctx := context.Background()
		ref := store.Doc("items", "a")
		mustSet(t, s, ref, &Item{Name: "a"})

		err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			if err := tx.Delete(ctx, ref); err != nil {
				return err
			}
			var it Item
			if err := tx.Get(ctx, ref, &it); !errors.Is(err, store.ErrNoDocument) {
				t.Errorf("tx.Get() after Delete error = %v, want ErrNoDocument", err)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("RunTransaction() error = %v", err)
		}

		var it Item
		if err := s.Get(ctx, ref, &it); !errors.Is(err, store.ErrNoDocument) {
			t.Errorf("Get() error = %v, want ErrNoDocument", err)
		}
	})

	t.Run("QueryFiltersOrdersAndLimits", func(t *testing.T) {
		s := newStore(t, clock)
		ctx := context.Background()
		mustSet(t, s, store.Doc("items", "c"), &Item{Name: "c", Owner: "u1", Active: true})
		mustSet(t, s, store.Doc("items", "a"), &Item{Name: "a", Owner: "u1", Active: true})
		mustSet(t, s, store.Doc("items", "b"), &Item{Name: "b", Owner: "u2", Active: true})
		mustSet(t, s, store.Doc("items", "d"), &Item{Name: "d", Owner: "u1", Active: false})

		snaps, err := s.Query(ctx, store.From("items").Where("owner", "u1").Where("active", true))
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if got := ids(snaps); !slices.Equal(got, []string{"a", "c"}) {
			t.Errorf("Query() ids = %v, want [a c]", got)
		}

		snaps, err = s.Query(ctx, store.From("items").Where("owner", "u1").Take(1))
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if got := ids(snaps); !slices.Equal(got, []string{"a"}) {
			t.Errorf("Query() with limit ids = %v, want [a]", got)
		}

		var it Item
		if err := snaps[0].DataTo(&it); err != nil {
			t.Fatalf("DataTo() error = %v", err)
		}
		if it.Name != "a" {
			t.Errorf("DataTo() Name = %q, want a", it.Name)
		}
	})

	t.Run("QueryNumericField", func(t *testing.T) {
		s := newStore(t, clock)
		mustSet(t, s, store.Doc("items", "a"), &Item{Count: 3})
		mustSet(t, s, store.Doc("items", "b"), &Item{Count: 4})

		snaps, err := s.Query(context.Background(), store.From("items").Where("count", 3))
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if got := ids(snaps); !slices.Equal(got, []string{"a"}) {
			t.Errorf("Query() ids = %v, want [a]", got)
		}
	})

	t.Run("QueryRejectsBadField", func(t *testing.T) {
		s := newStore(t, clock)
		_, err := s.Query(context.Background(), store.From("items").Where("x') OR 1=1 --", "y"))
		if err == nil {
			t.Fatal("Query() should reject an invalid field name")
		}
	})

	t.Run("SubCollectionsAreSeparate", func(t *testing.T) {
		s := newStore(t, clock)
		ctx := context.Background()
		parent := store.Doc("classrooms", "c1")
		mustSet(t, s, parent.Sub("items", "x"), &Item{Name: "nested"})
		mustSet(t, s, store.Doc("items", "x"), &Item{Name: "top"})

		snaps, err := s.Query(ctx, store.From(parent.SubCollection("items")))
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if len(snaps) != 1 {
			t.Fatalf("Query() returned %d docs, want 1", len(snaps))
		}
		var it Item
		if err := snaps[0].DataTo(&it); err != nil {
			t.Fatal(err)
		}
		if it.Name != "nested" {
			t.Errorf("Name = %q, want nested", it.Name)
		}
	})
}

func mustSet(t *testing.T, s store.Store, ref store.Ref, doc any) {
	t.Helper()
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Set(ctx, ref, doc)
	})
	if err != nil {
		t.Fatalf("seeding %s: %v", ref, err)
	}
}

func ids(snaps []store.Snapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.Ref.ID
	}
	return out
}
