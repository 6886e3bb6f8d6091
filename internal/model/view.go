package model

import "time"

// UserView is what callers see of a user. Gamification fields are only
// filled for students.
type UserView struct {
	UserID          string    `json:"userId"`
	DisplayName     string    `json:"displayName"`
	Email           string    `json:"email"`
	Role            Role      `json:"role"`
	AvatarURL       string    `json:"avatarUrl,omitempty"`
	ThemePreference string    `json:"themePreference,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	Level           *int      `json:"level,omitempty"`
	CurrentXP       *int64    `json:"currentXp,omitempty"`
	XPToNextLevel   *int64    `json:"xpToNextLevel,omitempty"`
}

func NewUserView(u *User) *UserView {
	v := &UserView{
		UserID:          u.ID,
		DisplayName:     u.DisplayName,
		Email:           u.Email,
		Role:            u.Role,
		AvatarURL:       u.AvatarURL,
		ThemePreference: u.ThemePreference,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
	if u.IsStudent() {
		level, xp, next := u.Level, u.CurrentXP, u.XPToNextLevel
		v.Level, v.CurrentXP, v.XPToNextLevel = &level, &xp, &next
	}
	return v
}

// Classroom, AssignedGame, Game and StudentGameAttempt are already shaped for
// callers, so their views are the documents themselves.
type (
	ClassroomView    = Classroom
	AssignedGameView = AssignedGame
	GameView         = Game
	AttemptView      = StudentGameAttempt
)
