package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/brightminds/internal/apperror"
	"github.com/sakif/brightminds/internal/auth"
	"github.com/sakif/brightminds/internal/model"
)

// ClassroomAccess answers the authorization questions routes ask about a
// classroom. service.ClassroomService implements it.
type ClassroomAccess interface {
	IsTeacherOwner(ctx context.Context, teacherID, classroomID string) (bool, error)
	IsStudentEnrolled(ctx context.Context, studentID, classroomID string) (bool, error)
}

// StudentCheck is implemented by service.UserService.
type StudentCheck interface {
	IsUserStudent(ctx context.Context, userID string) (bool, error)
}

// Access guards routes that carry a {classroomId} or {userId} parameter.
// The services repeat the same checks inside their transactions; these
// middlewares turn a request away before any body is read.
type Access struct {
	classrooms ClassroomAccess
	students   StudentCheck
	logger     *slog.Logger
}

func NewAccess(classrooms ClassroomAccess, students StudentCheck, logger *slog.Logger) *Access {
	return &Access{classrooms: classrooms, students: students, logger: logger}
}

// RequireRegistered rejects callers that have a token but no profile yet.
func (a *Access) RequireRegistered(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := auth.CallerFromContext(r.Context())
		if !ok || !caller.Registered() {
			writeError(w, apperror.Forbidden("register a profile before using this endpoint"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClassroomOwner admits only the teacher who owns {classroomId}.
func (a *Access) ClassroomOwner(next http.Handler) http.Handler {
	return a.guard(func(ctx context.Context, caller auth.Caller, r *http.Request) (bool, error) {
		if caller.Role != model.RoleTeacher {
			return false, nil
		}
		return a.classrooms.IsTeacherOwner(ctx, caller.ID, chi.URLParam(r, "classroomId"))
	}, next)
}

// ClassroomMember admits the owning teacher and enrolled students.
func (a *Access) ClassroomMember(next http.Handler) http.Handler {
	return a.guard(func(ctx context.Context, caller auth.Caller, r *http.Request) (bool, error) {
		return a.isMember(ctx, caller, chi.URLParam(r, "classroomId"))
	}, next)
}

// EnrolledInQueryClassroom checks the optional ?classroomId= filter of
// student-facing list endpoints.
func (a *Access) EnrolledInQueryClassroom(next http.Handler) http.Handler {
	return a.guard(func(ctx context.Context, caller auth.Caller, r *http.Request) (bool, error) {
		classroomID := r.URL.Query().Get("classroomId")
		if classroomID == "" {
			return true, nil
		}
		return a.classrooms.IsStudentEnrolled(ctx, caller.ID, classroomID)
	}, next)
}

// SelfOrTeacherOfStudent admits a user reading their own {userId}, or a
// teacher reading a student's profile.
func (a *Access) SelfOrTeacherOfStudent(next http.Handler) http.Handler {
	return a.guard(func(ctx context.Context, caller auth.Caller, r *http.Request) (bool, error) {
		userID := chi.URLParam(r, "userId")
		if userID == caller.ID {
			return true, nil
		}
		if caller.Role != model.RoleTeacher {
			return false, nil
		}
		return a.students.IsUserStudent(ctx, userID)
	}, next)
}

func (a *Access) isMember(ctx context.Context, caller auth.Caller, classroomID string) (bool, error) {
	switch caller.Role {
	case model.RoleTeacher:
		return a.classrooms.IsTeacherOwner(ctx, caller.ID, classroomID)
	case model.RoleStudent:
		return a.classrooms.IsStudentEnrolled(ctx, caller.ID, classroomID)
	}
	return false, nil
}

type accessCheck func(ctx context.Context, caller auth.Caller, r *http.Request) (bool, error)

func (a *Access) guard(check accessCheck, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := auth.CallerFromContext(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
			return
		}
		allowed, err := check(r.Context(), caller, r)
		if err != nil {
			if status, _ := statusFor(err); status == http.StatusInternalServerError {
				a.logger.Error("access check failed",
					slog.String("userId", caller.ID),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
			}
			writeError(w, err)
			return
		}
		if !allowed {
			writeError(w, apperror.Forbidden("you do not have access to this resource"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
