package repository

import (
	"context"
	"fmt"

	"github.com/sakif/brightminds/internal/model"
	"github.com/sakif/brightminds/internal/store"
)

// =========================================================================
// USERS
// =========================================================================

func GetUser(ctx context.Context, r store.Reader, id string) (*model.User, error) {
	return get[model.User](ctx, r, UserRef(id), "user")
}

// FindUserByEmail returns the first user with exactly this email.
func FindUserByEmail(ctx context.Context, r store.Reader, email string) (*model.User, error) {
	q := store.From(Users).Where("email", email)
	return first[model.User](ctx, r, q, "user", "email", email)
}

func PutUser(ctx context.Context, tx store.Tx, u *model.User) error {
	return put(ctx, tx, UserRef(u.ID), u)
}

// =========================================================================
// CLASSROOMS
// =========================================================================

func GetClassroom(ctx context.Context, r store.Reader, id string) (*model.Classroom, error) {
	return get[model.Classroom](ctx, r, ClassroomRef(id), "classroom")
}

func FindClassroomByCode(ctx context.Context, r store.Reader, code string) (*model.Classroom, error) {
	q := store.From(Classrooms).Where("uniqueCode", code)
	return first[model.Classroom](ctx, r, q, "classroom", "code", code)
}

// CodeInUse reports whether any classroom already has this join code.
func CodeInUse(ctx context.Context, r store.Reader, code string) (bool, error) {
	snaps, err := r.Query(ctx, store.From(Classrooms).Where("uniqueCode", code).Take(1))
	if err != nil {
		return false, fmt.Errorf("repository: checking join code: %w", err)
	}
	return len(snaps) > 0, nil
}

func ListClassroomsByTeacher(ctx context.Context, r store.Reader, teacherID string) ([]model.Classroom, error) {
	return list[model.Classroom](ctx, r, store.From(Classrooms).Where("teacherId", teacherID), "classroom")
}

func PutClassroom(ctx context.Context, tx store.Tx, c *model.Classroom) error {
	return put(ctx, tx, ClassroomRef(c.ID), c)
}

// =========================================================================
// ENROLLMENT MARKERS
// =========================================================================

func ListEnrollments(ctx context.Context, r store.Reader, classroomID string) ([]model.Enrollment, error) {
	q := store.From(ClassroomRef(classroomID).SubCollection(EnrolledStudents))
	return list[model.Enrollment](ctx, r, q, "enrollment")
}

func PutEnrollment(ctx context.Context, tx store.Tx, classroomID string, e *model.Enrollment) error {
	return put(ctx, tx, EnrollmentRef(classroomID, e.StudentID), e)
}

func DeleteEnrollment(ctx context.Context, tx store.Tx, classroomID, studentID string) error {
	ref := EnrollmentRef(classroomID, studentID)
	if err := tx.Delete(ctx, ref); err != nil {
		return fmt.Errorf("repository: deleting %s: %w", ref, err)
	}
	return nil
}

// =========================================================================
// ASSIGNED GAMES
// =========================================================================

func GetAssignedGame(ctx context.Context, r store.Reader, classroomID, id string) (*model.AssignedGame, error) {
	return get[model.AssignedGame](ctx, r, AssignedGameRef(classroomID, id), "assigned game")
}

func ListAssignedGames(ctx context.Context, r store.Reader, classroomID string) ([]model.AssignedGame, error) {
	q := store.From(ClassroomRef(classroomID).SubCollection(AssignedGames))
	return list[model.AssignedGame](ctx, r, q, "assigned game")
}

func PutAssignedGame(ctx context.Context, tx store.Tx, a *model.AssignedGame) error {
	return put(ctx, tx, AssignedGameRef(a.ClassroomID, a.ID), a)
}

func DeleteAssignedGame(ctx context.Context, tx store.Tx, classroomID, id string) error {
	ref := AssignedGameRef(classroomID, id)
	if err := tx.Delete(ctx, ref); err != nil {
		return fmt.Errorf("repository: deleting %s: %w", ref, err)
	}
	return nil
}

// =========================================================================
// ATTEMPTS
// =========================================================================

// CountAttempts counts a student's attempts at one assigned game.
func CountAttempts(ctx context.Context, r store.Reader, studentID, assignedGameID string) (int, error) {
	q := store.From(Attempts).
		Where("studentId", studentID).
		Where("assignedGameId", assignedGameID)
	snaps, err := r.Query(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("repository: counting attempts: %w", err)
	}
	return len(snaps), nil
}

// AttemptFilter narrows ListAttempts. Empty fields are ignored.
type AttemptFilter struct {
	StudentID      string
	ClassroomID    string
	AssignedGameID string
}

func ListAttempts(ctx context.Context, r store.Reader, f AttemptFilter) ([]model.StudentGameAttempt, error) {
	q := store.From(Attempts)
	if f.StudentID != "" {
		q = q.Where("studentId", f.StudentID)
	}
	if f.ClassroomID != "" {
		q = q.Where("classroomId", f.ClassroomID)
	}
	if f.AssignedGameID != "" {
		q = q.Where("assignedGameId", f.AssignedGameID)
	}
	return list[model.StudentGameAttempt](ctx, r, q, "attempt")
}

func PutAttempt(ctx context.Context, tx store.Tx, a *model.StudentGameAttempt) error {
	return put(ctx, tx, AttemptRef(a.ID), a)
}

// =========================================================================
// LIBRARY GAMES
// =========================================================================

func GetGame(ctx context.Context, r store.Reader, id string) (*model.Game, error) {
	return get[model.Game](ctx, r, GameRef(id), "library game")
}

func ListGames(ctx context.Context, r store.Reader) ([]model.Game, error) {
	return list[model.Game](ctx, r, store.From(Games), "library game")
}

func PutGame(ctx context.Context, tx store.Tx, g *model.Game) error {
	return put(ctx, tx, GameRef(g.ID), g)
}
