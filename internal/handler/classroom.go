package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/brightminds/internal/auth"
	"github.com/sakif/brightminds/internal/model"
	"github.com/sakif/brightminds/internal/service"
)

// ClassroomHandler covers classrooms, their rosters and their assigned games.
// Ownership and enrollment are checked by Access before these run.
type ClassroomHandler struct {
	classrooms *service.ClassroomService
	validate   *Validator
	logger     *slog.Logger
}

func NewClassroomHandler(classrooms *service.ClassroomService, validate *Validator, logger *slog.Logger) *ClassroomHandler {
	return &ClassroomHandler{classrooms: classrooms, validate: validate, logger: logger}
}

// ===== CLASSROOMS =====

type createClassroomRequest struct {
	Name        string `json:"name" validate:"required,notblank,min=3,max=100"`
	Description string `json:"description" validate:"max=255"`
	IconURL     string `json:"iconUrl" validate:"omitempty,url"`
}

func (h *ClassroomHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFromContext(r.Context())

	var req createClassroomRequest
	if err := h.validate.Bind(w, r, &req); err != nil {
		rejectBody(w, r, h.logger, err)
		return
	}

	c, err := h.classrooms.Create(r.Context(), caller.ID, service.CreateClassroomInput{
		Name:        req.Name,
		Description: req.Description,
		IconURL:     req.IconURL,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *ClassroomHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	c, err := h.classrooms.Get(r.Context(), chi.URLParam(r, "classroomId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type updateClassroomRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=3,max=100"`
	Description *string `json:"description" validate:"omitempty,max=255"`
	IconURL     *string `json:"iconUrl" validate:"omitempty,url"`
}

func (h *ClassroomHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFromContext(r.Context())

	var req updateClassroomRequest
	if err := h.validate.Bind(w, r, &req); err != nil {
		rejectBody(w, r, h.logger, err)
		return
	}

	c, err := h.classrooms.Update(r.Context(), chi.URLParam(r, "classroomId"), caller.ID, model.ClassroomPatch{
		Name:        req.Name,
		Description: req.Description,
		IconURL:     req.IconURL,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ClassroomHandler) HandleListTeaching(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFromContext(r.Context())
	list, err := h.classrooms.ListTeaching(r.Context(), caller.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(list))
}

func (h *ClassroomHandler) HandleListEnrolled(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFromContext(r.Context())
	list, err := h.classrooms.ListEnrolled(r.Context(), caller.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(list))
}

// ===== ENROLLMENT =====

type enrollRequest struct {
	Code string `json:"code" validate:"required,notblank,len=8"`
}

// HandleEnroll joins the calling student to the classroom with the code.
// Joining twice is not an error.
func (h *ClassroomHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFromContext(r.Context())

	var req enrollRequest
	if err := h.validate.Bind(w, r, &req); err != nil {
		rejectBody(w, r, h.logger, err)
		return
	}

	c, err := h.classrooms.EnrollByCode(r.Context(), caller.ID, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type addStudentRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *ClassroomHandler) HandleAddStudent(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFromContext(r.Context())

	var req addStudentRequest
	if err := h.validate.Bind(w, r, &req); err != nil {
		rejectBody(w, r, h.logger, err)
		return
	}

	c, err := h.classrooms.EnrollByEmail(r.Context(), caller.ID, chi.URLParam(r, "classroomId"), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ClassroomHandler) HandleRemoveStudent(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFromContext(r.Context())

	c, err := h.classrooms.RemoveStudent(r.Context(), caller.ID,
		chi.URLParam(r, "classroomId"), chi.URLParam(r, "studentId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ClassroomHandler) HandleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.classrooms.ListStudents(r.Context(), chi.URLParam(r, "classroomId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(students))
}

// ===== ASSIGNED GAMES =====

type assignGameRequest struct {
	LibraryGameID      string     `json:"libraryGameId" validate:"required,notblank"`
	DueDate            *time.Time `json:"dueDate" validate:"required,future"`
	MaxAttemptsAllowed *int       `json:"maxAttemptsAllowed" validate:"omitempty,gte=0"`
}

func (h *ClassroomHandler) HandleAssignGame(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFromContext(r.Context())

	var req assignGameRequest
	if err := h.validate.Bind(w, r, &req); err != nil {
		rejectBody(w, r, h.logger, err)
		return
	}

	a, err := h.classrooms.AssignGame(r.Context(), caller.ID, chi.URLParam(r, "classroomId"), service.AssignGameInput{
		LibraryGameID:      req.LibraryGameID,
		DueDate:            req.DueDate,
		MaxAttemptsAllowed: req.MaxAttemptsAllowed,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *ClassroomHandler) HandleListAssignedGames(w http.ResponseWriter, r *http.Request) {
	list, err := h.classrooms.ListAssignedGames(r.Context(), chi.URLParam(r, "classroomId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(list))
}

func (h *ClassroomHandler) HandleUnassignGame(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFromContext(r.Context())

	err := h.classrooms.UnassignGame(r.Context(), caller.ID,
		chi.URLParam(r, "classroomId"), chi.URLParam(r, "assignedGameId"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ClassroomHandler) HandleGetAssignedGame(w http.ResponseWriter, r *http.Request) {
	a, err := h.classrooms.GetAssignedGame(r.Context(),
		chi.URLParam(r, "classroomId"), chi.URLParam(r, "assignedGameId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
