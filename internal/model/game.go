package model

import (
	"strings"
	"time"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

func ParseDifficulty(s string) (Difficulty, bool) {
	switch d := Difficulty(strings.ToUpper(strings.TrimSpace(s))); d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, true
	}
	return "", false
}

// Game is a library entry that teachers assign to classrooms.
type Game struct {
	ID                  string     `json:"libraryGameId"`
	Title               string     `json:"title"`
	Description         string     `json:"description,omitempty"`
	GradeLevel          int        `json:"gradeLevel,omitempty"`
	Difficulty          Difficulty `json:"difficulty,omitempty"`
	GameURLOrIdentifier string     `json:"gameUrlOrIdentifier,omitempty"`
	MaxXPAwarded        int        `json:"maxXpAwarded"`
	TotalPointsPossible int        `json:"totalPointsPossible"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

func (g *Game) StampServerTime(now time.Time) {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now
}

// AssignedGame is a classroom-scoped snapshot of a library Game. The copied
// fields are frozen at assignment time.
type AssignedGame struct {
	ID                  string     `json:"assignedGameId"`
	LibraryGameID       string     `json:"libraryGameId"`
	ClassroomID         string     `json:"classroomId"`
	GameTitle           string     `json:"gameTitle"`
	GameDescription     string     `json:"gameDescription,omitempty"`
	GameURLOrIdentifier string     `json:"gameUrlOrIdentifier,omitempty"`
	MaxXPAwarded        int        `json:"maxXpAwarded"`
	TotalPointsPossible int        `json:"totalPointsPossible"`
	MaxAttemptsAllowed  *int       `json:"maxAttemptsAllowed,omitempty"`
	DateAssigned        time.Time  `json:"dateAssigned"`
	DueDate             *time.Time `json:"dueDate,omitempty"`
}

func (a *AssignedGame) StampServerTime(now time.Time) {
	if a.DateAssigned.IsZero() {
		a.DateAssigned = now
	}
}

// NewAssignment snapshots g into an assignment for classroomID.
func NewAssignment(id, classroomID string, g *Game, dueDate *time.Time, maxAttempts *int) *AssignedGame {
	return &AssignedGame{
		ID:                  id,
		LibraryGameID:       g.ID,
		ClassroomID:         classroomID,
		GameTitle:           g.Title,
		GameDescription:     g.Description,
		GameURLOrIdentifier: g.GameURLOrIdentifier,
		MaxXPAwarded:        g.MaxXPAwarded,
		TotalPointsPossible: g.TotalPointsPossible,
		MaxAttemptsAllowed:  maxAttempts,
		DueDate:             dueDate,
	}
}

// Overdue reports whether now is past the due date. No due date is never overdue.
func (a *AssignedGame) Overdue(now time.Time) bool {
	return a.DueDate != nil && now.After(*a.DueDate)
}

// EffectiveMaxAttempts resolves the attempt cap: the assignment's own value
// when present and non-negative, otherwise fallback. Zero means no cap.
func (a *AssignedGame) EffectiveMaxAttempts(fallback int) int {
	if a.MaxAttemptsAllowed != nil && *a.MaxAttemptsAllowed >= 0 {
		return *a.MaxAttemptsAllowed
	}
	return fallback
}
