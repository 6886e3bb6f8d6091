package model

import (
	"math"
	"time"
)

const AttemptStatusCompleted = "COMPLETED"

// StudentGameAttempt is append-only: created once, never updated or deleted.
type StudentGameAttempt struct {
	ID                  string    `json:"attemptId"`
	StudentID           string    `json:"studentId"`
	ClassroomID         string    `json:"classroomId"`
	AssignedGameID      string    `json:"assignedGameId"`
	LibraryGameID       string    `json:"libraryGameId"`
	Score               int       `json:"score"`
	TotalPointsPossible int       `json:"totalPointsPossible"`
	XPEarned            int64     `json:"xpEarned"`
	Status              string    `json:"status"`
	StartedAt           time.Time `json:"startedAt"`
	CompletedAt         time.Time `json:"completedAt"`
}

func (a *StudentGameAttempt) StampServerTime(now time.Time) {
	if a.StartedAt.IsZero() {
		a.StartedAt = now
	}
	if a.CompletedAt.IsZero() {
		a.CompletedAt = now
	}
}

// ScoreXP converts a score into XP against an assignment's authoritative
// totals and returns the score to record, capped at totalPoints. ok is false
// when XP cannot be computed (missing totals or a negative score); xp is 0 and
// the score is returned as given in that case.
func ScoreXP(score, totalPoints, maxXP int) (xp int64, recorded int, ok bool) {
	if maxXP <= 0 || totalPoints <= 0 || score < 0 {
		return 0, score, false
	}
	score = min(score, totalPoints)
	raw := math.Round(float64(score) / float64(totalPoints) * float64(maxXP))
	return max(0, min(int64(raw), int64(maxXP))), score, true
}
