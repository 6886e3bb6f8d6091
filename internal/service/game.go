package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sakif/brightminds/internal/apperror"
	"github.com/sakif/brightminds/internal/model"
	"github.com/sakif/brightminds/internal/repository"
	"github.com/sakif/brightminds/internal/store"
)

// GameService manages the library of games teachers assign from.
type GameService struct {
	deps
}

func NewGameService(st store.Store, logger *slog.Logger, opts ...Option) *GameService {
	return &GameService{deps: newDeps(st, logger, opts)}
}

type AddGameInput struct {
	Title               string
	Description         string
	GradeLevel          int
	Difficulty          string
	GameURLOrIdentifier string
	MaxXPAwarded        int
	TotalPointsPossible int
}

// Add puts a new game in the library. Only teachers may add games.
func (s *GameService) Add(ctx context.Context, teacherID string, in AddGameInput) (*model.Game, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	if in.MaxXPAwarded < 0 {
		return nil, apperror.ValidationFailed("maxXpAwarded", "max XP cannot be negative")
	}
	if in.TotalPointsPossible < 0 {
		return nil, apperror.ValidationFailed("totalPointsPossible", "total points cannot be negative")
	}
	var difficulty model.Difficulty
	if in.Difficulty != "" {
		d, ok := model.ParseDifficulty(in.Difficulty)
		if !ok {
			return nil, apperror.ValidationFailed("difficulty", "difficulty must be EASY, MEDIUM or HARD")
		}
		difficulty = d
	}

	var created *model.Game
	err := s.runTx(ctx, "add game", func(ctx context.Context, tx store.Tx) error {
		if _, err := requireRole(ctx, tx, teacherID, model.RoleTeacher); err != nil {
			return err
		}
		g := &model.Game{
			ID:                  s.newID(),
			Title:               title,
			Description:         in.Description,
			GradeLevel:          in.GradeLevel,
			Difficulty:          difficulty,
			GameURLOrIdentifier: in.GameURLOrIdentifier,
			MaxXPAwarded:        in.MaxXPAwarded,
			TotalPointsPossible: in.TotalPointsPossible,
		}
		created = g
		return repository.PutGame(ctx, tx, g)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("library game added",
		slog.String("libraryGameId", created.ID),
		slog.String("teacherId", teacherID),
	)
	return created, nil
}

func (s *GameService) Get(ctx context.Context, id string) (*model.Game, error) {
	return repository.GetGame(ctx, s.store, id)
}

func (s *GameService) List(ctx context.Context) ([]model.Game, error) {
	return repository.ListGames(ctx, s.store)
}
