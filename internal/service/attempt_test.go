package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/brightminds/internal/apperror"
	"github.com/sakif/brightminds/internal/model"
	"github.com/sakif/brightminds/internal/repository"
	"github.com/sakif/brightminds/internal/store"
	"github.com/sakif/brightminds/internal/store/memory"
)

func submit(c *model.Classroom, a *model.AssignedGame, score int) SubmitAttempt {
	return SubmitAttempt{
		ClassroomID:         c.ID,
		AssignedGameID:      a.ID,
		Score:               score,
		TotalPointsPossible: a.TotalPointsPossible,
	}
}

func TestProcessAttempt_ComputesXP(t *testing.T) {
	f := newFixture(t)
	c, a := f.enrolledSetup(t, 50, 20, nil)
	ctx := context.Background()

	view, err := f.attempts.ProcessAttempt(ctx, "s1", submit(c, a, 15))
	require.NoError(t, err)

	// round(15/20*50) = round(37.5) = 38
	require.NotNil(t, view.CurrentXP)
	assert.Equal(t, int64(38), *view.CurrentXP)
	assert.Equal(t, 1, *view.Level)

	attempts, err := f.attempts.ListMine(ctx, "s1", c.ID, "")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	got := attempts[0]
	assert.Equal(t, int64(38), got.XPEarned)
	assert.Equal(t, model.AttemptStatusCompleted, got.Status)
	assert.Equal(t, 20, got.TotalPointsPossible)
	assert.Equal(t, "lg1", got.LibraryGameID)
	assert.True(t, got.StartedAt.Equal(testNow))
	assert.True(t, got.CompletedAt.Equal(testNow))
}

func TestProcessAttempt_XPTable(t *testing.T) {
	tests := []struct {
		name     string
		maxXP    int
		total    int
		score    int
		wantXP   int64
		wantLvl  int
		wantCurr int64
	}{
		{"perfect score", 50, 20, 20, 50, 1, 50},
		{"score above total is clamped", 50, 20, 99, 50, 1, 50},
		{"zero score", 50, 20, 0, 0, 1, 0},
		{"negative score earns nothing", 50, 20, -3, 0, 1, 0},
		{"no max XP earns nothing", 0, 20, 20, 0, 1, 0},
		{"no total points earns nothing", 50, 0, 10, 0, 1, 0},
		{"big game levels up", 250, 10, 10, 250, 3, 25}, // 250 - 100 - 125
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			c, a := f.enrolledSetup(t, tt.maxXP, tt.total, nil)

			view, err := f.attempts.ProcessAttempt(context.Background(), "s1", submit(c, a, tt.score))
			require.NoError(t, err)

			assert.Equal(t, tt.wantLvl, *view.Level)
			assert.Equal(t, tt.wantCurr, *view.CurrentXP)

			attempts, err := repository.ListAttempts(context.Background(), f.store, repository.AttemptFilter{StudentID: "s1"})
			require.NoError(t, err)
			require.Len(t, attempts, 1)
			assert.Equal(t, tt.wantXP, attempts[0].XPEarned)
		})
	}
}

func TestProcessAttempt_LevelUpCarriesOverflow(t *testing.T) {
	f := newFixture(t)
	c, a := f.enrolledSetup(t, 30, 10, ptr(0))
	f.seed(t, func(ctx context.Context, tx store.Tx) error {
		u, err := repository.GetUser(ctx, tx, "s1")
		if err != nil {
			return err
		}
		u.Level, u.CurrentXP, u.XPToNextLevel = 1, 90, 100
		return repository.PutUser(ctx, tx, u)
	})

	view, err := f.attempts.ProcessAttempt(context.Background(), "s1", submit(c, a, 10))
	require.NoError(t, err)

	assert.Equal(t, 2, *view.Level)
	assert.Equal(t, int64(20), *view.CurrentXP)
	assert.Equal(t, f.engine.ThresholdForLevel(2), *view.XPToNextLevel)
	assert.Equal(t, 1, f.recorder.levelUps)

	stored := f.user(t, "s1")
	assert.Equal(t, 2, stored.Level)
	assert.Equal(t, int64(20), stored.CurrentXP)
}

func TestProcessAttempt_NormalizesUninitializedStudent(t *testing.T) {
	f := newFixture(t)
	c, a := f.enrolledSetup(t, 50, 20, nil)
	f.seed(t, func(ctx context.Context, tx store.Tx) error {
		u, err := repository.GetUser(ctx, tx, "s1")
		if err != nil {
			return err
		}
		u.Level, u.CurrentXP, u.XPToNextLevel = 0, 0, 0
		return repository.PutUser(ctx, tx, u)
	})

	view, err := f.attempts.ProcessAttempt(context.Background(), "s1", submit(c, a, 20))
	require.NoError(t, err)
	assert.Equal(t, 1, *view.Level)
	assert.Equal(t, int64(50), *view.CurrentXP)
	assert.Equal(t, int64(100), *view.XPToNextLevel)
}

func TestProcessAttempt_AttemptCap(t *testing.T) {
	const n = 2
	f := newFixture(t)
	c, a := f.enrolledSetup(t, 50, 20, ptr(n))
	ctx := context.Background()

	for i := range n {
		_, err := f.attempts.ProcessAttempt(ctx, "s1", submit(c, a, 10))
		require.NoError(t, err, "attempt %d", i+1)
	}

	before := f.store.Writes()
	_, err := f.attempts.ProcessAttempt(ctx, "s1", submit(c, a, 10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrAttemptLimit), "got %v", err)
	assert.Equal(t, "maximum attempts (2) reached for this game", err.Error())
	assert.Equal(t, before, f.store.Writes(), "rejected attempt must not write")
	assert.Equal(t, 1, f.recorder.rejected[RejectAttemptLimit])
}

func TestProcessAttempt_ZeroCapIsUnlimited(t *testing.T) {
	f := newFixture(t)
	c, a := f.enrolledSetup(t, 50, 20, ptr(0))

	for i := range 6 {
		_, err := f.attempts.ProcessAttempt(context.Background(), "s1", submit(c, a, 1))
		require.NoError(t, err, "attempt %d", i+1)
	}
}

func TestProcessAttempt_UnsetCapUsesDefault(t *testing.T) {
	t.Run("default 1", func(t *testing.T) {
		f := newFixture(t, withDefaultMaxAttempts(1))
		c, a := f.enrolledSetup(t, 50, 20, nil)
		ctx := context.Background()

		_, err := f.attempts.ProcessAttempt(ctx, "s1", submit(c, a, 1))
		require.NoError(t, err)
		_, err = f.attempts.ProcessAttempt(ctx, "s1", submit(c, a, 1))
		assert.True(t, errors.Is(err, apperror.ErrAttemptLimit), "got %v", err)
	})

	t.Run("default 0 means no cap", func(t *testing.T) {
		f := newFixture(t, withDefaultMaxAttempts(0))
		c, a := f.enrolledSetup(t, 50, 20, nil)

		for range 5 {
			_, err := f.attempts.ProcessAttempt(context.Background(), "s1", submit(c, a, 1))
			require.NoError(t, err)
		}
	})
}

func TestProcessAttempt_CapHoldsUnderConcurrency(t *testing.T) {
	const limit = 3
	f := newFixture(t, withStoreOptions(memory.WithMaxAttempts(100)))
	c, a := f.enrolledSetup(t, 50, 20, ptr(limit))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		limited   int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.attempts.ProcessAttempt(context.Background(), "s1", submit(c, a, 5))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, apperror.ErrAttemptLimit):
				limited++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, succeeded)
	assert.Equal(t, 10-limit, limited)

	// 3 attempts of round(5/20*50) = 13 XP each, no XP lost to races.
	assert.Equal(t, int64(39), f.user(t, "s1").CurrentXP)
}

func TestProcessAttempt_OverdueIsAccepted(t *testing.T) {
	f := newFixture(t)
	f.addTeacher(t, "t1")
	f.addStudent(t, "s1")
	f.addGame(t, "lg1", 50, 20)
	c := f.createClassroom(t, "t1")
	ctx := context.Background()
	_, err := f.classrooms.EnrollByCode(ctx, "s1", c.UniqueCode)
	require.NoError(t, err)
	past := testNow.Add(-time.Hour)
	a, err := f.classrooms.AssignGame(ctx, "t1", c.ID, AssignGameInput{LibraryGameID: "lg1", DueDate: &past})
	require.NoError(t, err)

	_, err = f.attempts.ProcessAttempt(ctx, "s1", submit(c, a, 20))
	require.NoError(t, err)
	assert.Equal(t, 1, f.recorder.overdue)
	assert.Equal(t, int64(50), f.recorder.xp)
}

func TestProcessAttempt_UsesAssignmentTotals(t *testing.T) {
	f := newFixture(t)
	c, a := f.enrolledSetup(t, 50, 20, nil)

	in := submit(c, a, 10)
	in.TotalPointsPossible = 10 // a lying client would get 50 XP

	view, err := f.attempts.ProcessAttempt(context.Background(), "s1", in)
	require.NoError(t, err)
	assert.Equal(t, int64(25), *view.CurrentXP)

	attempts, err := f.attempts.ListMine(context.Background(), "s1", "", "")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, 20, attempts[0].TotalPointsPossible)
}

func TestProcessAttempt_StoresScoreCappedAtTotal(t *testing.T) {
	f := newFixture(t)
	c, a := f.enrolledSetup(t, 50, 20, nil)

	view, err := f.attempts.ProcessAttempt(context.Background(), "s1", submit(c, a, 999))
	require.NoError(t, err)
	assert.Equal(t, int64(50), *view.CurrentXP)

	attempts, err := f.attempts.ListMine(context.Background(), "s1", "", "")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, 20, attempts[0].Score)
	assert.Equal(t, 20, attempts[0].TotalPointsPossible)
	assert.Equal(t, int64(50), attempts[0].XPEarned)
}

func TestProcessAttempt_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		student string
		mutate  func(in *SubmitAttempt)
		wantErr error
	}{
		{"missing student", "ghost", nil, apperror.ErrNotFound},
		{"teacher cannot submit", "t1", nil, apperror.ErrInvalidRole},
		{"not enrolled", "s2", nil, apperror.ErrForbidden},
		{"missing assignment", "s1", func(in *SubmitAttempt) { in.AssignedGameID = "nope" }, apperror.ErrNotFound},
		{"assignment of another classroom", "s1", func(in *SubmitAttempt) { in.ClassroomID = "other" }, apperror.ErrForbidden},
		{"blank classroom", "s1", func(in *SubmitAttempt) { in.ClassroomID = "" }, apperror.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			c, a := f.enrolledSetup(t, 50, 20, nil)
			f.addStudent(t, "s2")
			in := submit(c, a, 10)
			if tt.mutate != nil {
				tt.mutate(&in)
			}
			before := f.store.Writes()

			_, err := f.attempts.ProcessAttempt(context.Background(), tt.student, in)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, before, f.store.Writes())
		})
	}
}

func TestListForAssignedGame(t *testing.T) {
	f := newFixture(t)
	c, a := f.enrolledSetup(t, 50, 20, nil)
	f.addTeacher(t, "t2")
	ctx := context.Background()
	_, err := f.attempts.ProcessAttempt(ctx, "s1", submit(c, a, 10))
	require.NoError(t, err)

	got, err := f.attempts.ListForAssignedGame(ctx, "t1", c.ID, a.ID)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = f.attempts.ListForAssignedGame(ctx, "t2", c.ID, a.ID)
	assert.True(t, errors.Is(err, apperror.ErrForbidden), "got %v", err)

	_, err = f.attempts.ListMine(ctx, "s1", "not-mine", "")
	assert.True(t, errors.Is(err, apperror.ErrForbidden), "got %v", err)
}
