package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/brightminds/internal/auth"
	"github.com/sakif/brightminds/internal/service"
)

// GameHandler serves the shared game library.
type GameHandler struct {
	games    *service.GameService
	validate *Validator
	logger   *slog.Logger
}

func NewGameHandler(games *service.GameService, validate *Validator, logger *slog.Logger) *GameHandler {
	return &GameHandler{games: games, validate: validate, logger: logger}
}

func (h *GameHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	games, err := h.games.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(games))
}

func (h *GameHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	g, err := h.games.Get(r.Context(), chi.URLParam(r, "libraryGameId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

type addGameRequest struct {
	Title               string `json:"title" validate:"required,notblank,max=100"`
	Description         string `json:"description" validate:"max=1000"`
	GradeLevel          int    `json:"gradeLevel" validate:"gte=0,lte=12"`
	Difficulty          string `json:"difficulty" validate:"omitempty,oneof=EASY MEDIUM HARD easy medium hard"`
	GameURLOrIdentifier string `json:"gameUrlOrIdentifier" validate:"max=500"`
	MaxXPAwarded        int    `json:"maxXpAwarded" validate:"gte=0"`
	TotalPointsPossible int    `json:"totalPointsPossible" validate:"gte=1"`
}

func (h *GameHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFromContext(r.Context())

	var req addGameRequest
	if err := h.validate.Bind(w, r, &req); err != nil {
		rejectBody(w, r, h.logger, err)
		return
	}

	g, err := h.games.Add(r.Context(), caller.ID, service.AddGameInput{
		Title:               req.Title,
		Description:         req.Description,
		GradeLevel:          req.GradeLevel,
		Difficulty:          req.Difficulty,
		GameURLOrIdentifier: req.GameURLOrIdentifier,
		MaxXPAwarded:        req.MaxXPAwarded,
		TotalPointsPossible: req.TotalPointsPossible,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}
