package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/brightminds/internal/apperror"
	"github.com/sakif/brightminds/internal/model"
	"github.com/sakif/brightminds/internal/repository"
	"github.com/sakif/brightminds/internal/store"
)

const (
	MinClassroomNameLength = 3
	MaxClassroomNameLength = 100
	MaxDescriptionLength   = 255

	// maxJoinCodeTries bounds how many fresh codes are drawn when the
	// generated one is already taken.
	maxJoinCodeTries = 5
)

// Enrollment methods reported to the Recorder.
const (
	EnrollByCode  = "code"
	EnrollByEmail = "email"
)

// ClassroomService runs the membership and assignment transactions.
type ClassroomService struct {
	deps
}

func NewClassroomService(st store.Store, logger *slog.Logger, opts ...Option) *ClassroomService {
	return &ClassroomService{deps: newDeps(st, logger, opts)}
}

type CreateClassroomInput struct {
	Name        string
	Description string
	IconURL     string
}

// Create makes a classroom owned by teacherID and adds it to the teacher's
// teacherOfClassrooms list.
func (s *ClassroomService) Create(ctx context.Context, teacherID string, in CreateClassroomInput) (*model.Classroom, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "classroom name is required")
	}
	if len(name) < MinClassroomNameLength {
		return nil, apperror.ValidationFailed("name", "classroom name is too short")
	}
	if len(name) > MaxClassroomNameLength {
		return nil, apperror.ValidationFailed("name", "classroom name is too long")
	}
	if len(in.Description) > MaxDescriptionLength {
		return nil, apperror.ValidationFailed("description", "description is too long")
	}

	var created *model.Classroom
	err := s.runTx(ctx, "create classroom", func(ctx context.Context, tx store.Tx) error {
		teacher, err := requireRole(ctx, tx, teacherID, model.RoleTeacher)
		if err != nil {
			return err
		}
		code, err := s.uniqueJoinCode(ctx, tx)
		if err != nil {
			return err
		}

		c := &model.Classroom{
			ID:          s.newID(),
			Name:        name,
			TeacherID:   teacher.ID,
			TeacherName: teacher.DisplayName,
			UniqueCode:  code,
			Description: in.Description,
			IconURL:     in.IconURL,
		}
		teacher.TeacherOfClassrooms = append(teacher.TeacherOfClassrooms, c.ID)

		if err := repository.PutClassroom(ctx, tx, c); err != nil {
			return err
		}
		if err := repository.PutUser(ctx, tx, teacher); err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		s.logger.Warn("create classroom rejected",
			slog.String("teacherId", teacherID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.metrics.ClassroomCreated()
	s.logger.Info("classroom created",
		slog.String("classroomId", created.ID),
		slog.String("teacherId", teacherID),
		slog.String("code", created.UniqueCode),
	)
	return created, nil
}

// uniqueJoinCode draws codes until one is not used by any classroom. The
// lookup runs inside the transaction, so a concurrent create with the same
// code forces a retry instead of a duplicate.
func (s *ClassroomService) uniqueJoinCode(ctx context.Context, tx store.Tx) (string, error) {
	for range maxJoinCodeTries {
		code := s.newCode()
		used, err := repository.CodeInUse(ctx, tx, code)
		if err != nil {
			return "", err
		}
		if !used {
			return code, nil
		}
	}
	return "", apperror.Internal("could not generate a unique classroom code", nil)
}

// Update applies the present fields of patch. Nothing is written when the
// patch changes nothing.
func (s *ClassroomService) Update(ctx context.Context, classroomID, teacherID string, patch model.ClassroomPatch) (*model.Classroom, error) {
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		if trimmed != "" && len(trimmed) < MinClassroomNameLength {
			return nil, apperror.ValidationFailed("name", "classroom name is too short")
		}
		if len(trimmed) > MaxClassroomNameLength {
			return nil, apperror.ValidationFailed("name", "classroom name is too long")
		}
		patch.Name = &trimmed
	}
	if patch.Description != nil && len(*patch.Description) > MaxDescriptionLength {
		return nil, apperror.ValidationFailed("description", "description is too long")
	}

	var (
		result  *model.Classroom
		changed bool
	)
	err := s.runTx(ctx, "update classroom", func(ctx context.Context, tx store.Tx) error {
		c, err := requireOwner(ctx, tx, classroomID, teacherID)
		if err != nil {
			return err
		}
		result, changed = c, patch.Apply(c)
		if !changed {
			return nil
		}
		return repository.PutClassroom(ctx, tx, c)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.Info("classroom updated", slog.String("classroomId", classroomID))
	}
	return result, nil
}

// EnrollByCode adds the student to the classroom with this join code.
// Enrolling twice is a no-op.
func (s *ClassroomService) EnrollByCode(ctx context.Context, studentID, code string) (*model.Classroom, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, apperror.ValidationFailed("code", "classroom code is required")
	}

	var (
		result *model.Classroom
		added  bool
	)
	err := s.runTx(ctx, "enroll by code", func(ctx context.Context, tx store.Tx) error {
		student, err := requireRole(ctx, tx, studentID, model.RoleStudent)
		if err != nil {
			return err
		}
		c, err := repository.FindClassroomByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		result = c
		added, err = enroll(ctx, tx, student, c)
		return err
	})
	if err != nil {
		s.logger.Warn("enroll by code rejected",
			slog.String("studentId", studentID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.afterEnroll(EnrollByCode, result.ID, studentID, added)
	return result, nil
}

// EnrollByEmail lets the owning teacher add a student by email address.
// Adding a student who is already a member is a no-op.
func (s *ClassroomService) EnrollByEmail(ctx context.Context, teacherID, classroomID, email string) (*model.Classroom, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "student email is required")
	}

	var (
		result    *model.Classroom
		studentID string
		added     bool
	)
	err := s.runTx(ctx, "enroll by email", func(ctx context.Context, tx store.Tx) error {
		c, err := requireOwner(ctx, tx, classroomID, teacherID)
		if err != nil {
			return err
		}
		student, err := repository.FindUserByEmail(ctx, tx, email)
		if err != nil {
			return err
		}
		if !student.IsStudent() {
			return apperror.InvalidRole(student.ID, string(model.RoleStudent))
		}
		result, studentID = c, student.ID
		added, err = enroll(ctx, tx, student, c)
		return err
	})
	if err != nil {
		s.logger.Warn("enroll by email rejected",
			slog.String("classroomId", classroomID),
			slog.String("teacherId", teacherID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.afterEnroll(EnrollByEmail, classroomID, studentID, added)
	return result, nil
}

// enroll links student and classroom in both directions. It reports false
// and writes nothing when the student is already a member.
func enroll(ctx context.Context, tx store.Tx, student *model.User, c *model.Classroom) (bool, error) {
	if !student.AddStudentClassroom(c.ID) {
		return false, nil
	}
	c.StudentCount++

	marker := &model.Enrollment{
		StudentID:    student.ID,
		StudentName:  student.DisplayName,
		StudentEmail: student.Email,
	}
	if err := repository.PutEnrollment(ctx, tx, c.ID, marker); err != nil {
		return false, err
	}
	if err := repository.PutUser(ctx, tx, student); err != nil {
		return false, err
	}
	if err := repository.PutClassroom(ctx, tx, c); err != nil {
		return false, err
	}
	return true, nil
}

func (s *ClassroomService) afterEnroll(method, classroomID, studentID string, added bool) {
	if !added {
		s.logger.Info("student already enrolled",
			slog.String("classroomId", classroomID),
			slog.String("studentId", studentID),
		)
		return
	}
	s.metrics.StudentEnrolled(method)
	s.logger.Info("student enrolled",
		slog.String("classroomId", classroomID),
		slog.String("studentId", studentID),
		slog.String("method", method),
	)
}

// RemoveStudent reverses an enrollment. A student who is not enrolled leaves
// the classroom untouched and nothing is written.
func (s *ClassroomService) RemoveStudent(ctx context.Context, teacherID, classroomID, studentID string) (*model.Classroom, error) {
	var (
		result  *model.Classroom
		removed bool
	)
	err := s.runTx(ctx, "remove student", func(ctx context.Context, tx store.Tx) error {
		c, err := requireOwner(ctx, tx, classroomID, teacherID)
		if err != nil {
			return err
		}
		student, err := repository.GetUser(ctx, tx, studentID)
		if err != nil {
			return err
		}
		result = c
		removed = student.RemoveStudentClassroom(c.ID)
		if !removed {
			return nil
		}
		c.StudentCount = max(0, c.StudentCount-1)

		if err := repository.DeleteEnrollment(ctx, tx, c.ID, student.ID); err != nil {
			return err
		}
		if err := repository.PutUser(ctx, tx, student); err != nil {
			return err
		}
		return repository.PutClassroom(ctx, tx, c)
	})
	if err != nil {
		return nil, err
	}

	if removed {
		s.metrics.StudentRemoved()
		s.logger.Info("student removed",
			slog.String("classroomId", classroomID),
			slog.String("studentId", studentID),
		)
	}
	return result, nil
}

type AssignGameInput struct {
	LibraryGameID      string
	DueDate            *time.Time
	MaxAttemptsAllowed *int
}

// AssignGame snapshots a library game into the classroom.
func (s *ClassroomService) AssignGame(ctx context.Context, teacherID, classroomID string, in AssignGameInput) (*model.AssignedGame, error) {
	if strings.TrimSpace(in.LibraryGameID) == "" {
		return nil, apperror.ValidationFailed("libraryGameId", "library game id is required")
	}
	if in.MaxAttemptsAllowed != nil && *in.MaxAttemptsAllowed < 0 {
		return nil, apperror.ValidationFailed("maxAttemptsAllowed", "max attempts cannot be negative")
	}

	var assigned *model.AssignedGame
	err := s.runTx(ctx, "assign game", func(ctx context.Context, tx store.Tx) error {
		c, err := requireOwner(ctx, tx, classroomID, teacherID)
		if err != nil {
			return err
		}
		g, err := repository.GetGame(ctx, tx, in.LibraryGameID)
		if err != nil {
			return err
		}

		a := model.NewAssignment(s.newID(), c.ID, g, in.DueDate, in.MaxAttemptsAllowed)
		c.ActivityCount++

		if err := repository.PutAssignedGame(ctx, tx, a); err != nil {
			return err
		}
		if err := repository.PutClassroom(ctx, tx, c); err != nil {
			return err
		}
		assigned = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.GameAssigned()
	s.logger.Info("game assigned",
		slog.String("classroomId", classroomID),
		slog.String("assignedGameId", assigned.ID),
		slog.String("libraryGameId", assigned.LibraryGameID),
	)
	return assigned, nil
}

// UnassignGame deletes an assignment. Attempts already recorded against it
// are kept.
func (s *ClassroomService) UnassignGame(ctx context.Context, teacherID, classroomID, assignedGameID string) error {
	err := s.runTx(ctx, "unassign game", func(ctx context.Context, tx store.Tx) error {
		c, err := requireOwner(ctx, tx, classroomID, teacherID)
		if err != nil {
			return err
		}
		if _, err := repository.GetAssignedGame(ctx, tx, c.ID, assignedGameID); err != nil {
			return err
		}
		c.ActivityCount = max(0, c.ActivityCount-1)

		if err := repository.DeleteAssignedGame(ctx, tx, c.ID, assignedGameID); err != nil {
			return err
		}
		return repository.PutClassroom(ctx, tx, c)
	})
	if err != nil {
		return err
	}

	s.metrics.GameUnassigned()
	s.logger.Info("game unassigned",
		slog.String("classroomId", classroomID),
		slog.String("assignedGameId", assignedGameID),
	)
	return nil
}

// =========================================================================
// READS
// =========================================================================

func (s *ClassroomService) Get(ctx context.Context, classroomID string) (*model.Classroom, error) {
	return repository.GetClassroom(ctx, s.store, classroomID)
}

// ListTeaching returns the classrooms owned by teacherID.
func (s *ClassroomService) ListTeaching(ctx context.Context, teacherID string) ([]model.Classroom, error) {
	if _, err := requireRole(ctx, s.store, teacherID, model.RoleTeacher); err != nil {
		return nil, err
	}
	return repository.ListClassroomsByTeacher(ctx, s.store, teacherID)
}

// ListEnrolled returns the classrooms a student belongs to, skipping ids
// whose classroom no longer exists.
func (s *ClassroomService) ListEnrolled(ctx context.Context, studentID string) ([]model.Classroom, error) {
	student, err := requireRole(ctx, s.store, studentID, model.RoleStudent)
	if err != nil {
		return nil, err
	}

	out := make([]model.Classroom, 0, len(student.StudentOfClassrooms))
	for _, id := range student.StudentOfClassrooms {
		c, err := repository.GetClassroom(ctx, s.store, id)
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Warn("enrolled classroom missing",
				slog.String("studentId", studentID),
				slog.String("classroomId", id),
			)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

func (s *ClassroomService) ListAssignedGames(ctx context.Context, classroomID string) ([]model.AssignedGame, error) {
	if _, err := repository.GetClassroom(ctx, s.store, classroomID); err != nil {
		return nil, err
	}
	return repository.ListAssignedGames(ctx, s.store, classroomID)
}

func (s *ClassroomService) GetAssignedGame(ctx context.Context, classroomID, assignedGameID string) (*model.AssignedGame, error) {
	return repository.GetAssignedGame(ctx, s.store, classroomID, assignedGameID)
}

// ListStudents resolves the enrollment markers of a classroom into student
// views. Markers whose user is gone are skipped.
func (s *ClassroomService) ListStudents(ctx context.Context, classroomID string) ([]*model.UserView, error) {
	if _, err := repository.GetClassroom(ctx, s.store, classroomID); err != nil {
		return nil, err
	}
	markers, err := repository.ListEnrollments(ctx, s.store, classroomID)
	if err != nil {
		return nil, err
	}

	out := make([]*model.UserView, 0, len(markers))
	for _, m := range markers {
		u, err := repository.GetUser(ctx, s.store, m.StudentID)
		if errors.Is(err, apperror.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, model.NewUserView(u))
	}
	return out, nil
}

// =========================================================================
// PREDICATES
// =========================================================================

// IsTeacherOwner reports whether teacherID owns the classroom. A missing
// classroom is an error, not false.
func (s *ClassroomService) IsTeacherOwner(ctx context.Context, teacherID, classroomID string) (bool, error) {
	c, err := repository.GetClassroom(ctx, s.store, classroomID)
	if err != nil {
		return false, err
	}
	return c.OwnedBy(teacherID), nil
}

// IsStudentEnrolled reports whether the classroom is in the student's
// membership list. A missing student is simply not enrolled.
func (s *ClassroomService) IsStudentEnrolled(ctx context.Context, studentID, classroomID string) (bool, error) {
	u, err := repository.GetUser(ctx, s.store, studentID)
	if errors.Is(err, apperror.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.EnrolledIn(classroomID), nil
}
