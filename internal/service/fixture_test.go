package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/brightminds/internal/leveling"
	"github.com/sakif/brightminds/internal/model"
	"github.com/sakif/brightminds/internal/repository"
	"github.com/sakif/brightminds/internal/store"
	"github.com/sakif/brightminds/internal/store/memory"
)

// =========================================================================
// TEST FIXTURE
// =========================================================================
//
// The services run against the in-memory store, which is a real
// transactional store, not a mock. It counts committed writes, so tests can
// assert that a rejected or no-op operation wrote nothing.

var testNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store      *memory.Store
	engine     *leveling.Engine
	recorder   *fakeRecorder
	classrooms *ClassroomService
	attempts   *AttemptService
	users      *UserService
	games      *GameService
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	defaultMaxAttempts int
	storeOpts          []memory.Option
	serviceOpts        []Option
}

func withDefaultMaxAttempts(n int) fixtureOption {
	return func(c *fixtureConfig) { c.defaultMaxAttempts = n }
}

func withStoreOptions(opts ...memory.Option) fixtureOption {
	return func(c *fixtureConfig) { c.storeOpts = append(c.storeOpts, opts...) }
}

func withServiceOptions(opts ...Option) fixtureOption {
	return func(c *fixtureConfig) { c.serviceOpts = append(c.serviceOpts, opts...) }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := fixtureConfig{defaultMaxAttempts: 3}
	for _, opt := range opts {
		opt(&cfg)
	}

	st := memory.New(append([]memory.Option{memory.WithClock(func() time.Time { return testNow })}, cfg.storeOpts...)...)
	engine, err := leveling.New(leveling.DefaultConfig())
	require.NoError(t, err)

	rec := &fakeRecorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svcOpts := append([]Option{
		WithRecorder(rec),
		WithIDGenerator(sequentialIDs()),
		WithClock(func() time.Time { return testNow }),
	}, cfg.serviceOpts...)

	return &fixture{
		store:      st,
		engine:     engine,
		recorder:   rec,
		classrooms: NewClassroomService(st, logger, svcOpts...),
		attempts:   NewAttemptService(st, engine, cfg.defaultMaxAttempts, logger, svcOpts...),
		users:      NewUserService(st, engine, fakeVerifier("letmein"), logger, svcOpts...),
		games:      NewGameService(st, logger, svcOpts...),
	}
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id%03d", n)
	}
}

// seed writes docs in one transaction, bypassing the services.
func (f *fixture) seed(t *testing.T, fn func(ctx context.Context, tx store.Tx) error) {
	t.Helper()
	require.NoError(t, f.store.RunTransaction(context.Background(), fn))
}

func (f *fixture) addTeacher(t *testing.T, id string) *model.User {
	t.Helper()
	u := &model.User{ID: id, DisplayName: "Teacher " + id, Email: id + "@school.test", Role: model.RoleTeacher}
	f.seed(t, func(ctx context.Context, tx store.Tx) error { return repository.PutUser(ctx, tx, u) })
	return u
}

func (f *fixture) addStudent(t *testing.T, id string) *model.User {
	t.Helper()
	u := &model.User{
		ID: id, DisplayName: "Student " + id, Email: id + "@school.test", Role: model.RoleStudent,
		Level: 1, CurrentXP: 0, XPToNextLevel: 100,
	}
	f.seed(t, func(ctx context.Context, tx store.Tx) error { return repository.PutUser(ctx, tx, u) })
	return u
}

func (f *fixture) addGame(t *testing.T, id string, maxXP, totalPoints int) *model.Game {
	t.Helper()
	g := &model.Game{ID: id, Title: "Game " + id, MaxXPAwarded: maxXP, TotalPointsPossible: totalPoints}
	f.seed(t, func(ctx context.Context, tx store.Tx) error { return repository.PutGame(ctx, tx, g) })
	return g
}

func (f *fixture) createClassroom(t *testing.T, teacherID string) *model.Classroom {
	t.Helper()
	c, err := f.classrooms.Create(context.Background(), teacherID, CreateClassroomInput{Name: "Algebra I"})
	require.NoError(t, err)
	return c
}

func (f *fixture) user(t *testing.T, id string) *model.User {
	t.Helper()
	u, err := repository.GetUser(context.Background(), f.store, id)
	require.NoError(t, err)
	return u
}

func (f *fixture) classroom(t *testing.T, id string) *model.Classroom {
	t.Helper()
	c, err := repository.GetClassroom(context.Background(), f.store, id)
	require.NoError(t, err)
	return c
}

// enrolledSetup returns a classroom with one enrolled student and one
// assigned game.
func (f *fixture) enrolledSetup(t *testing.T, maxXP, totalPoints int, maxAttempts *int) (*model.Classroom, *model.AssignedGame) {
	t.Helper()
	ctx := context.Background()
	f.addTeacher(t, "t1")
	f.addStudent(t, "s1")
	f.addGame(t, "lg1", maxXP, totalPoints)
	c := f.createClassroom(t, "t1")

	_, err := f.classrooms.EnrollByCode(ctx, "s1", c.UniqueCode)
	require.NoError(t, err)
	a, err := f.classrooms.AssignGame(ctx, "t1", c.ID, AssignGameInput{
		LibraryGameID:      "lg1",
		MaxAttemptsAllowed: maxAttempts,
	})
	require.NoError(t, err)
	return c, a
}

func ptr[T any](v T) *T { return &v }

// =========================================================================
// FAKES
// =========================================================================

type fakeVerifier string

func (v fakeVerifier) VerifyTeacherCode(code string) bool { return code == string(v) }

type fakeRecorder struct {
	mu        sync.Mutex
	created   int
	enrolled  map[string]int
	removed   int
	assigned  int
	attempts  int
	xp        int64
	overdue   int
	rejected  map[string]int
	levelUps  int
	registers map[model.Role]int
}

func (r *fakeRecorder) ClassroomCreated() { r.mu.Lock(); r.created++; r.mu.Unlock() }
func (r *fakeRecorder) StudentRemoved()   { r.mu.Lock(); r.removed++; r.mu.Unlock() }
func (r *fakeRecorder) GameAssigned()     { r.mu.Lock(); r.assigned++; r.mu.Unlock() }
func (r *fakeRecorder) GameUnassigned()   {}

func (r *fakeRecorder) StudentEnrolled(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enrolled == nil {
		r.enrolled = map[string]int{}
	}
	r.enrolled[method]++
}

func (r *fakeRecorder) AttemptRecorded(xp int64, overdue bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	r.xp += xp
	if overdue {
		r.overdue++
	}
}

func (r *fakeRecorder) AttemptRejected(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rejected == nil {
		r.rejected = map[string]int{}
	}
	r.rejected[reason]++
}

func (r *fakeRecorder) LevelUp(from, to int) { r.mu.Lock(); r.levelUps++; r.mu.Unlock() }

func (r *fakeRecorder) UserRegistered(role model.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registers == nil {
		r.registers = map[model.Role]int{}
	}
	r.registers[role]++
}
