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

// TeacherCodeVerifier checks the enrollment code a teacher must present to
// register. auth.EnrollmentCode implements it with bcrypt.
type TeacherCodeVerifier interface {
	VerifyTeacherCode(code string) bool
}

// UserService owns user profiles. Identity ids are issued by the identity
// provider and arrive here already verified.
type UserService struct {
	deps
	engine      *leveling.Engine
	teacherCode TeacherCodeVerifier
}

func NewUserService(st store.Store, engine *leveling.Engine, teacherCode TeacherCodeVerifier, logger *slog.Logger, opts ...Option) *UserService {
	return &UserService{
		deps:        newDeps(st, logger, opts),
		engine:      engine,
		teacherCode: teacherCode,
	}
}

type RegisterInput struct {
	DisplayName string
	Email       string
	Role        string
	AvatarURL   string
	TeacherCode string
}

// Register creates the profile for identityID. Teachers must present the
// teacher enrollment code. Students start at level 1 with no XP.
func (s *UserService) Register(ctx context.Context, identityID string, in RegisterInput) (*model.UserView, error) {
	if strings.TrimSpace(identityID) == "" {
		return nil, apperror.ValidationFailed("userId", "identity is required")
	}
	role, ok := model.ParseRole(in.Role)
	if !ok {
		return nil, apperror.ValidationFailed("role", "role must be TEACHER or STUDENT")
	}
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		return nil, apperror.ValidationFailed("displayName", "display name is required")
	}
	// bcrypt is slow on purpose; keep it out of the transaction.
	if role == model.RoleTeacher && (s.teacherCode == nil || !s.teacherCode.VerifyTeacherCode(in.TeacherCode)) {
		return nil, apperror.ValidationFailed("teacherCode", "invalid teacher enrollment code")
	}

	var created *model.User
	err := s.runTx(ctx, "register user", func(ctx context.Context, tx store.Tx) error {
		_, err := repository.GetUser(ctx, tx, identityID)
		if err == nil {
			return apperror.AlreadyExists("user", "id", identityID)
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		if err := ensureEmailFree(ctx, tx, email, ""); err != nil {
			return err
		}

		u := &model.User{
			ID:                  identityID,
			DisplayName:         name,
			Email:               email,
			Role:                role,
			AvatarURL:           in.AvatarURL,
			ThemePreference:     model.DefaultTheme,
			StudentOfClassrooms: []string{},
			TeacherOfClassrooms: []string{},
		}
		if role == model.RoleStudent {
			s.engine.Normalize(u)
		}
		created = u
		return repository.PutUser(ctx, tx, u)
	})
	if err != nil {
		s.logger.Warn("registration rejected",
			slog.String("userId", identityID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.metrics.UserRegistered(role)
	s.logger.Info("user registered",
		slog.String("userId", identityID),
		slog.String("role", string(role)),
	)
	return model.NewUserView(created), nil
}

// ensureEmailFree fails with AlreadyExists when another user (not selfID)
// already uses email.
func ensureEmailFree(ctx context.Context, r store.Reader, email, selfID string) error {
	other, err := repository.FindUserByEmail(ctx, r, email)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if other.ID != selfID {
		return apperror.AlreadyExists("user", "email", email)
	}
	return nil
}

// UserPatch carries optional profile changes. Nil or empty means unchanged.
type UserPatch struct {
	DisplayName     *string
	Email           *string
	AvatarURL       *string
	ThemePreference *string
}

// Update changes the caller's own profile.
func (s *UserService) Update(ctx context.Context, callerID, userID string, patch UserPatch) (*model.UserView, error) {
	if callerID != userID {
		return nil, apperror.Forbidden("users can only update their own profile")
	}

	var result *model.User
	err := s.runTx(ctx, "update user", func(ctx context.Context, tx store.Tx) error {
		u, err := repository.GetUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		result = u

		changed := false
		set := func(dst *string, v *string) {
			if v == nil {
				return
			}
			trimmed := strings.TrimSpace(*v)
			if trimmed != "" && trimmed != *dst {
				*dst = trimmed
				changed = true
			}
		}
		if patch.Email != nil {
			email := strings.TrimSpace(*patch.Email)
			if email != "" && email != u.Email {
				if err := ensureEmailFree(ctx, tx, email, u.ID); err != nil {
					return err
				}
			}
		}
		set(&u.DisplayName, patch.DisplayName)
		set(&u.Email, patch.Email)
		set(&u.AvatarURL, patch.AvatarURL)
		set(&u.ThemePreference, patch.ThemePreference)

		if !changed {
			return nil
		}
		return repository.PutUser(ctx, tx, u)
	})
	if err != nil {
		return nil, err
	}
	return model.NewUserView(result), nil
}

func (s *UserService) Get(ctx context.Context, userID string) (*model.UserView, error) {
	u, err := repository.GetUser(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	return model.NewUserView(u), nil
}

// RoleOf returns the registered role of userID.
func (s *UserService) RoleOf(ctx context.Context, userID string) (model.Role, error) {
	u, err := repository.GetUser(ctx, s.store, userID)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

// IsUserStudent reports whether userID is a registered student. A missing
// user is not a student.
func (s *UserService) IsUserStudent(ctx context.Context, userID string) (bool, error) {
	u, err := repository.GetUser(ctx, s.store, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.IsStudent(), nil
}
