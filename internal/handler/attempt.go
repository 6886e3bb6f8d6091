package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/brightminds/internal/auth"
	"github.com/sakif/brightminds/internal/service"
)

type AttemptHandler struct {
	attempts *service.AttemptService
	validate *Validator
	logger   *slog.Logger
}

func NewAttemptHandler(attempts *service.AttemptService, validate *Validator, logger *slog.Logger) *AttemptHandler {
	return &AttemptHandler{attempts: attempts, validate: validate, logger: logger}
}

type submitAttemptRequest struct {
	ClassroomID         string `json:"classroomId" validate:"required,notblank"`
	AssignedGameID      string `json:"assignedGameId" validate:"required,notblank"`
	Score               *int   `json:"score" validate:"required,gte=0"`
	TotalPointsPossible *int   `json:"totalPointsPossible" validate:"required,gte=1"`
}

// HandleSubmit records a finished game and returns the student's updated
// profile, so the client can show XP and level changes right away.
func (h *AttemptHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFromContext(r.Context())

	var req submitAttemptRequest
	if err := h.validate.Bind(w, r, &req); err != nil {
		rejectBody(w, r, h.logger, err)
		return
	}

	view, err := h.attempts.ProcessAttempt(r.Context(), caller.ID, service.SubmitAttempt{
		ClassroomID:         req.ClassroomID,
		AssignedGameID:      req.AssignedGameID,
		Score:               *req.Score,
		TotalPointsPossible: *req.TotalPointsPossible,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// HandleListMine lists the caller's attempts. Optional filters:
// ?classroomId= and ?assignedGameId=.
func (h *AttemptHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFromContext(r.Context())
	q := r.URL.Query()

	list, err := h.attempts.ListMine(r.Context(), caller.ID, q.Get("classroomId"), q.Get("assignedGameId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(list))
}

func (h *AttemptHandler) HandleListForAssignedGame(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFromContext(r.Context())

	list, err := h.attempts.ListForAssignedGame(r.Context(), caller.ID,
		chi.URLParam(r, "classroomId"), chi.URLParam(r, "assignedGameId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(list))
}
