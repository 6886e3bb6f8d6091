// Package service contains the business transactions of the application.
//
// THE LAYERS:
//
//	Handler (HTTP)        → decodes and validates requests, maps errors
//	Service (this package) → enforces the rules, runs the transactions
//	Repository + Store    → typed documents over a transactional store
//
// TRANSACTIONS:
// Every operation that changes more than one document runs inside
// store.RunTransaction. The body reads what it needs through the Tx,
// checks preconditions, mutates, and writes. A failed precondition returns an
// apperror from the body, which aborts the transaction with nothing written.
//
// Bodies may run more than once when the store detects contention, so they
// only touch the Tx. Logging and metrics happen after the transaction has
// committed, using values the last run of the body left behind.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"

	"github.com/sakif/brightminds/internal/apperror"
	"github.com/sakif/brightminds/internal/model"
	"github.com/sakif/brightminds/internal/repository"
	"github.com/sakif/brightminds/internal/store"
)

// Recorder receives business events once they are committed. The metrics
// package implements it with Prometheus counters.
type Recorder interface {
	ClassroomCreated()
	StudentEnrolled(method string)
	StudentRemoved()
	GameAssigned()
	GameUnassigned()
	AttemptRecorded(xp int64, overdue bool)
	AttemptRejected(reason string)
	LevelUp(from, to int)
	UserRegistered(role model.Role)
}

type nopRecorder struct{}

func (nopRecorder) ClassroomCreated()           {}
func (nopRecorder) StudentEnrolled(string)      {}
func (nopRecorder) StudentRemoved()             {}
func (nopRecorder) GameAssigned()               {}
func (nopRecorder) GameUnassigned()             {}
func (nopRecorder) AttemptRecorded(int64, bool) {}
func (nopRecorder) AttemptRejected(string)      {}
func (nopRecorder) LevelUp(int, int)            {}
func (nopRecorder) UserRegistered(model.Role)   {}

// deps is what every service needs. Options adjust it.
type deps struct {
	store   store.Store
	logger  *slog.Logger
	metrics Recorder
	newID   func() string
	newCode func() string
	now     func() time.Time
}

type Option func(*deps)

// WithRecorder sends committed business events to r.
func WithRecorder(r Recorder) Option {
	return func(d *deps) {
		if r != nil {
			d.metrics = r
		}
	}
}

// WithIDGenerator replaces the xid-based document id generator.
func WithIDGenerator(fn func() string) Option {
	return func(d *deps) { d.newID = fn }
}

// WithJoinCodeGenerator replaces the classroom join-code generator.
func WithJoinCodeGenerator(fn func() string) Option {
	return func(d *deps) { d.newCode = fn }
}

// WithClock replaces time.Now for due-date checks.
func WithClock(fn func() time.Time) Option {
	return func(d *deps) { d.now = fn }
}

func newDeps(st store.Store, logger *slog.Logger, opts []Option) deps {
	d := deps{
		store:   st,
		logger:  logger,
		metrics: nopRecorder{},
		newID:   func() string { return xid.New().String() },
		newCode: NewJoinCode,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// JoinCodeLength is the number of characters in a classroom join code.
const JoinCodeLength = 8

// NewJoinCode returns 8 uppercase hex characters taken from a random UUID.
func NewJoinCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:JoinCodeLength])
}

// runTx runs fn and turns anything that is not already an AppError into an
// Internal error, so store failures never leak their own types upward.
func (d *deps) runTx(ctx context.Context, op string, fn store.TxFunc) error {
	err := d.store.RunTransaction(ctx, fn)
	if err == nil {
		return nil
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	d.logger.Error("transaction failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	return apperror.Internal(op+" failed", err)
}

// requireRole loads userID and checks its role.
func requireRole(ctx context.Context, r store.Reader, userID string, role model.Role) (*model.User, error) {
	u, err := repository.GetUser(ctx, r, userID)
	if err != nil {
		return nil, err
	}
	if u.Role != role {
		return nil, apperror.InvalidRole(userID, string(role))
	}
	return u, nil
}

// requireOwner loads the classroom and checks that teacherID owns it.
func requireOwner(ctx context.Context, r store.Reader, classroomID, teacherID string) (*model.Classroom, error) {
	c, err := repository.GetClassroom(ctx, r, classroomID)
	if err != nil {
		return nil, err
	}
	if !c.OwnedBy(teacherID) {
		return nil, apperror.Forbidden("only the owning teacher can manage this classroom")
	}
	return c, nil
}
