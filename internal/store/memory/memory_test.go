package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sakif/brightminds/internal/store"
	"github.com/sakif/brightminds/internal/store/storetest"
)

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, clock func() time.Time) store.Store {
		return New(WithClock(clock))
	})
}

type counter struct {
	N int `json:"n"`
}

func increment(ctx context.Context, tx store.Tx, ref store.Ref) error {
	var c counter
	if err := tx.Get(ctx, ref, &c); err != nil && !errors.Is(err, store.ErrNoDocument) {
		return err
	}
	c.N++
	return tx.Set(ctx, ref, &c)
}

// =========================================================================
// CONFLICT TESTS
// =========================================================================

func TestRunTransaction_RetriesOnConflict(t *testing.T) {
	s := New()
	ctx := context.Background()
	ref := store.Doc("counters", "c")

	runs := 0
	err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		runs++
		var c counter
		if err := tx.Get(ctx, ref, &c); err != nil && !errors.Is(err, store.ErrNoDocument) {
			return err
		}
		if runs == 1 {
			// Another writer commits between our read and our commit.
			if err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
				return increment(ctx, tx, ref)
			}); err != nil {
				return err
			}
		}
		c.N++
		return tx.Set(ctx, ref, &c)
	})
	if err != nil {
		t.Fatalf("RunTransaction() error = %v", err)
	}
	if runs != 2 {
		t.Errorf("body ran %d times, want 2", runs)
	}

	var got counter
	if err := s.Get(ctx, ref, &got); err != nil {
		t.Fatal(err)
	}
	if got.N != 2 {
		t.Errorf("counter = %d, want 2 (no lost update)", got.N)
	}
}

func TestRunTransaction_QueryConflict(t *testing.T) {
	s := New()
	ctx := context.Background()

	runs := 0
	err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		runs++
		snaps, err := tx.Query(ctx, store.From("codes").Where("code", "ABC"))
		if err != nil {
			return err
		}
		if runs == 1 {
			if err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
				return tx.Set(ctx, store.Doc("codes", "other"), map[string]string{"code": "ABC"})
			}); err != nil {
				return err
			}
		}
		if len(snaps) > 0 {
			return nil
		}
		return tx.Set(ctx, store.Doc("codes", "mine"), map[string]string{"code": "ABC"})
	})
	if err != nil {
		t.Fatalf("RunTransaction() error = %v", err)
	}
	if runs != 2 {
		t.Errorf("body ran %d times, want 2", runs)
	}

	snaps, err := s.Query(ctx, store.From("codes").Where("code", "ABC"))
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 {
		t.Errorf("found %d docs with code ABC, want 1", len(snaps))
	}
}

func TestRunTransaction_GivesUp(t *testing.T) {
	s := New(WithMaxAttempts(3))
	ctx := context.Background()
	ref := store.Doc("counters", "c")

	runs := 0
	err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		runs++
		var c counter
		_ = tx.Get(ctx, ref, &c)
		if err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			return increment(ctx, tx, ref)
		}); err != nil {
			return err
		}
		return tx.Set(ctx, ref, &c)
	})
	if !errors.Is(err, store.ErrTxConflict) {
		t.Fatalf("RunTransaction() error = %v, want ErrTxConflict", err)
	}
	if runs != 3 {
		t.Errorf("body ran %d times, want 3", runs)
	}
}

func TestRunTransaction_Concurrent(t *testing.T) {
	s := New(WithMaxAttempts(1000))
	ctx := context.Background()
	ref := store.Doc("counters", "c")

	const workers = 20
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
				return increment(ctx, tx, ref)
			})
			if err != nil {
				t.Errorf("RunTransaction() error = %v", err)
			}
		}()
	}
	wg.Wait()

	var got counter
	if err := s.Get(ctx, ref, &got); err != nil {
		t.Fatal(err)
	}
	if got.N != workers {
		t.Errorf("counter = %d, want %d", got.N, workers)
	}
}

// =========================================================================
// WRITE COUNTER TESTS
// =========================================================================

func TestWrites_ReadOnlyTransaction(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var c counter
		_ = tx.Get(ctx, store.Doc("counters", "c"), &c)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Writes() != 0 || s.Commits() != 0 {
		t.Errorf("Writes() = %d, Commits() = %d, want 0 and 0", s.Writes(), s.Commits())
	}
}

func TestWrites_CountsEachOperation(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Set(ctx, store.Doc("a", "1"), &counter{N: 1}); err != nil {
			return err
		}
		if err := tx.Set(ctx, store.Doc("a", "2"), &counter{N: 2}); err != nil {
			return err
		}
		return tx.Delete(ctx, store.Doc("a", "1"))
	})
	if err != nil {
		t.Fatal(err)
	}
	// "a/1" was set then deleted in the same transaction: one staged write.
	if s.Writes() != 2 {
		t.Errorf("Writes() = %d, want 2", s.Writes())
	}
	if s.Commits() != 1 {
		t.Errorf("Commits() = %d, want 1", s.Commits())
	}
}

func TestRunTransaction_CancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		t.Error("body should not run with a cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RunTransaction() error = %v, want context.Canceled", err)
	}
}
