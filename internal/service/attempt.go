package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sakif/brightminds/internal/apperror"
	"github.com/sakif/brightminds/internal/leveling"
	"github.com/sakif/brightminds/internal/model"
	"github.com/sakif/brightminds/internal/repository"
	"github.com/sakif/brightminds/internal/store"
)

// Reasons reported to Recorder.AttemptRejected.
const (
	RejectAttemptLimit = "attempt_limit"
	RejectNotEnrolled  = "not_enrolled"
	RejectOther        = "other"
)

// AttemptService records game attempts and turns scores into XP.
type AttemptService struct {
	deps
	engine             *leveling.Engine
	defaultMaxAttempts int
}

// NewAttemptService builds the service. defaultMaxAttempts is the cap used
// when an assignment does not set its own; 0 means unlimited.
func NewAttemptService(st store.Store, engine *leveling.Engine, defaultMaxAttempts int, logger *slog.Logger, opts ...Option) *AttemptService {
	return &AttemptService{
		deps:               newDeps(st, logger, opts),
		engine:             engine,
		defaultMaxAttempts: max(0, defaultMaxAttempts),
	}
}

// SubmitAttempt is one finished play-through. TotalPointsPossible is what the
// client believes the total is; the assignment's own value wins.
type SubmitAttempt struct {
	ClassroomID         string
	AssignedGameID      string
	Score               int
	TotalPointsPossible int
}

// attemptOutcome is what the transaction body leaves for post-commit logging.
type attemptOutcome struct {
	student    *model.User
	attempt    *model.StudentGameAttempt
	progress   leveling.Progress
	overdue    bool
	mismatch   bool
	computable bool
	authTotal  int
	limit      int
}

// ProcessAttempt validates eligibility, records the attempt and applies the
// earned XP to the student, all in one transaction.
func (s *AttemptService) ProcessAttempt(ctx context.Context, studentID string, in SubmitAttempt) (*model.UserView, error) {
	if strings.TrimSpace(in.ClassroomID) == "" {
		return nil, apperror.ValidationFailed("classroomId", "classroom id is required")
	}
	if strings.TrimSpace(in.AssignedGameID) == "" {
		return nil, apperror.ValidationFailed("assignedGameId", "assigned game id is required")
	}

	now := s.now()
	var out attemptOutcome
	err := s.runTx(ctx, "process attempt", func(ctx context.Context, tx store.Tx) error {
		out = attemptOutcome{}

		student, err := requireRole(ctx, tx, studentID, model.RoleStudent)
		if err != nil {
			return err
		}
		if !student.EnrolledIn(in.ClassroomID) {
			return apperror.Forbidden("student is not enrolled in this classroom")
		}
		game, err := repository.GetAssignedGame(ctx, tx, in.ClassroomID, in.AssignedGameID)
		if err != nil {
			return err
		}
		out.overdue = game.Overdue(now)

		out.limit = game.EffectiveMaxAttempts(s.defaultMaxAttempts)
		if out.limit > 0 {
			n, err := repository.CountAttempts(ctx, tx, studentID, game.ID)
			if err != nil {
				return err
			}
			if n >= out.limit {
				return apperror.AttemptLimitExceeded(out.limit)
			}
		}

		out.authTotal = game.TotalPointsPossible
		out.mismatch = in.TotalPointsPossible != game.TotalPointsPossible
		xp, score, ok := model.ScoreXP(in.Score, game.TotalPointsPossible, game.MaxXPAwarded)
		out.computable = ok

		attempt := &model.StudentGameAttempt{
			ID:                  s.newID(),
			StudentID:           student.ID,
			ClassroomID:         in.ClassroomID,
			AssignedGameID:      game.ID,
			LibraryGameID:       game.LibraryGameID,
			Score:               score,
			TotalPointsPossible: game.TotalPointsPossible,
			XPEarned:            xp,
			Status:              model.AttemptStatusCompleted,
		}

		if xp > 0 {
			s.engine.Normalize(student)
			p, err := s.engine.ApplyXP(student, xp)
			if err != nil {
				return err
			}
			out.progress = p
		}

		if err := repository.PutAttempt(ctx, tx, attempt); err != nil {
			return err
		}
		if err := repository.PutUser(ctx, tx, student); err != nil {
			return err
		}
		out.student, out.attempt = student, attempt
		return nil
	})
	if err != nil {
		s.rejected(studentID, in, err)
		return nil, err
	}

	s.committed(in, out)
	return model.NewUserView(out.student), nil
}

func (s *AttemptService) rejected(studentID string, in SubmitAttempt, err error) {
	reason := RejectOther
	switch {
	case errors.Is(err, apperror.ErrAttemptLimit):
		reason = RejectAttemptLimit
	case errors.Is(err, apperror.ErrForbidden):
		reason = RejectNotEnrolled
	}
	s.metrics.AttemptRejected(reason)
	s.logger.Warn("attempt rejected",
		slog.String("studentId", studentID),
		slog.String("classroomId", in.ClassroomID),
		slog.String("assignedGameId", in.AssignedGameID),
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
}

func (s *AttemptService) committed(in SubmitAttempt, out attemptOutcome) {
	a := out.attempt
	if out.overdue {
		s.logger.Warn("attempt submitted after due date",
			slog.String("attemptId", a.ID),
			slog.String("assignedGameId", a.AssignedGameID),
		)
	}
	if out.mismatch {
		s.logger.Warn("client total points differ from assignment",
			slog.String("attemptId", a.ID),
			slog.Int("clientTotal", in.TotalPointsPossible),
			slog.Int("assignmentTotal", out.authTotal),
		)
	}
	if !out.computable {
		s.logger.Warn("xp not computable for attempt, awarding 0",
			slog.String("attemptId", a.ID),
			slog.Int("score", a.Score),
			slog.Int("totalPoints", out.authTotal),
		)
	}

	s.metrics.AttemptRecorded(a.XPEarned, out.overdue)
	s.logger.Info("attempt recorded",
		slog.String("attemptId", a.ID),
		slog.String("studentId", a.StudentID),
		slog.String("assignedGameId", a.AssignedGameID),
		slog.Int64("xp", a.XPEarned),
	)

	if out.progress.LeveledUp() {
		s.metrics.LevelUp(out.progress.PreviousLevel, out.progress.Level)
		s.logger.Info("student leveled up",
			slog.String("studentId", a.StudentID),
			slog.Int("from", out.progress.PreviousLevel),
			slog.Int("to", out.progress.Level),
		)
	}
}

// =========================================================================
// READS
// =========================================================================

// ListMine returns the student's own attempts, optionally limited to one
// classroom the student belongs to and to one assignment.
func (s *AttemptService) ListMine(ctx context.Context, studentID, classroomID, assignedGameID string) ([]model.StudentGameAttempt, error) {
	student, err := requireRole(ctx, s.store, studentID, model.RoleStudent)
	if err != nil {
		return nil, err
	}
	if classroomID != "" && !student.EnrolledIn(classroomID) {
		return nil, apperror.Forbidden("student is not enrolled in this classroom")
	}
	return repository.ListAttempts(ctx, s.store, repository.AttemptFilter{
		StudentID:      studentID,
		ClassroomID:    classroomID,
		AssignedGameID: assignedGameID,
	})
}

// ListForAssignedGame returns every attempt at one assignment. Only the
// owning teacher may see them.
func (s *AttemptService) ListForAssignedGame(ctx context.Context, teacherID, classroomID, assignedGameID string) ([]model.StudentGameAttempt, error) {
	if _, err := requireOwner(ctx, s.store, classroomID, teacherID); err != nil {
		return nil, err
	}
	if _, err := repository.GetAssignedGame(ctx, s.store, classroomID, assignedGameID); err != nil {
		return nil, err
	}
	return repository.ListAttempts(ctx, s.store, repository.AttemptFilter{
		ClassroomID:    classroomID,
		AssignedGameID: assignedGameID,
	})
}
