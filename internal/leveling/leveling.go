// Package leveling turns XP into levels.
//
// The XP needed to leave level L is
//
//	threshold(L) = floor(BaseXP * Multiplier^(L-1))   for L >= 1
//	threshold(L) = BaseXP                              for L <= 0
//
// A student's progress is (Level, CurrentXP, XPToNextLevel) with
// 0 <= CurrentXP < XPToNextLevel once ApplyXP returns. Overflow past a
// threshold carries into the next level instead of being dropped.
package leveling

import (
	"errors"
	"fmt"
	"math"

	"github.com/sakif/brightminds/internal/apperror"
	"github.com/sakif/brightminds/internal/model"
)

// Config is the immutable XP formula.
type Config struct {
	BaseXP     int64
	Multiplier float64
}

func DefaultConfig() Config {
	return Config{BaseXP: 100, Multiplier: 1.25}
}

// Engine computes thresholds and applies XP. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	cfg Config
}

// New validates cfg. A multiplier below 1 would make thresholds shrink.
func New(cfg Config) (*Engine, error) {
	if cfg.BaseXP <= 0 {
		return nil, fmt.Errorf("leveling: base XP must be positive, got %d", cfg.BaseXP)
	}
	if cfg.Multiplier < 1 || math.IsNaN(cfg.Multiplier) || math.IsInf(cfg.Multiplier, 0) {
		return nil, fmt.Errorf("leveling: multiplier must be a finite number >= 1, got %v", cfg.Multiplier)
	}
	return &Engine{cfg: cfg}, nil
}

func (e *Engine) Config() Config { return e.cfg }

// ThresholdForLevel returns the XP required to advance past level.
// Results too large for int64 saturate at math.MaxInt64.
func (e *Engine) ThresholdForLevel(level int) int64 {
	if level <= 0 {
		return e.cfg.BaseXP
	}
	v := math.Floor(float64(e.cfg.BaseXP) * math.Pow(e.cfg.Multiplier, float64(level-1)))
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// Progress describes what one ApplyXP call did.
type Progress struct {
	PreviousLevel int
	Level         int
	XPApplied     int64
}

func (p Progress) LeveledUp() bool { return p.Level > p.PreviousLevel }

// Normalize repairs missing or non-positive gamification fields: level 1,
// zero XP and a fresh threshold. Valid fields are left alone.
func (e *Engine) Normalize(u *model.User) {
	if u.Level <= 0 {
		u.Level = 1
	}
	if u.CurrentXP < 0 {
		u.CurrentXP = 0
	}
	if u.XPToNextLevel <= 0 {
		u.XPToNextLevel = e.ThresholdForLevel(u.Level)
	}
}

var errBadThreshold = errors.New("leveling: non-positive threshold")

// ApplyXP adds delta to u and resolves level-ups. A non-positive delta is a
// no-op. The caller is expected to have normalized u.
func (e *Engine) ApplyXP(u *model.User, delta int64) (Progress, error) {
	p := Progress{PreviousLevel: u.Level, Level: u.Level}
	if delta <= 0 {
		return p, nil
	}
	if u.XPToNextLevel <= 0 {
		return p, apperror.Internal(
			fmt.Sprintf("invalid xp threshold %d for level %d", u.XPToNextLevel, u.Level),
			errBadThreshold,
		)
	}

	if u.CurrentXP > math.MaxInt64-delta {
		u.CurrentXP = math.MaxInt64
	} else {
		u.CurrentXP += delta
	}

	for u.CurrentXP >= u.XPToNextLevel {
		u.CurrentXP -= u.XPToNextLevel
		u.Level++
		next := e.ThresholdForLevel(u.Level)
		if next <= 0 {
			return p, apperror.Internal(
				fmt.Sprintf("invalid xp threshold %d for level %d", next, u.Level),
				errBadThreshold,
			)
		}
		u.XPToNextLevel = next
	}

	p.Level = u.Level
	p.XPApplied = delta
	return p, nil
}

// CumulativeXP is the total XP a student has earned, counting every
// threshold of the levels already passed.
func (e *Engine) CumulativeXP(u *model.User) int64 {
	var total int64
	for l := 1; l < u.Level; l++ {
		total += e.ThresholdForLevel(l)
	}
	return total + u.CurrentXP
}
