package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/brightminds/internal/auth"
	"github.com/sakif/brightminds/internal/service"
)

type UserHandler struct {
	users    *service.UserService
	validate *Validator
	logger   *slog.Logger
}

func NewUserHandler(users *service.UserService, validate *Validator, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, validate: validate, logger: logger}
}

type registerRequest struct {
	DisplayName string `json:"displayName" validate:"required,notblank,min=2,max=50"`
	Email       string `json:"email" validate:"required,email"`
	Role        string `json:"role" validate:"required,oneof=TEACHER STUDENT teacher student"`
	AvatarURL   string `json:"avatarUrl" validate:"omitempty,url"`
	TeacherCode string `json:"teacherCode"`
}

// HandleRegister creates the caller's profile. The id is the token subject;
// clients never choose it.
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFromContext(r.Context())

	var req registerRequest
	if err := h.validate.Bind(w, r, &req); err != nil {
		rejectBody(w, r, h.logger, err)
		return
	}

	view, err := h.users.Register(r.Context(), caller.ID, service.RegisterInput{
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Role:        req.Role,
		AvatarURL:   req.AvatarURL,
		TeacherCode: req.TeacherCode,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFromContext(r.Context())
	view, err := h.users.Get(r.Context(), caller.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.users.Get(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type updateUserRequest struct {
	DisplayName     *string `json:"displayName" validate:"omitempty,min=2,max=50"`
	Email           *string `json:"email" validate:"omitempty,email"`
	AvatarURL       *string `json:"avatarUrl" validate:"omitempty,url"`
	ThemePreference *string `json:"themePreference" validate:"omitempty,oneof=LIGHT DARK"`
}

func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFromContext(r.Context())

	var req updateUserRequest
	if err := h.validate.Bind(w, r, &req); err != nil {
		rejectBody(w, r, h.logger, err)
		return
	}

	view, err := h.users.Update(r.Context(), caller.ID, chi.URLParam(r, "userId"), service.UserPatch{
		DisplayName:     req.DisplayName,
		Email:           req.Email,
		AvatarURL:       req.AvatarURL,
		ThemePreference: req.ThemePreference,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
