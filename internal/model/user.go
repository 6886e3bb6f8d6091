// Package model defines the documents stored by the application and the
// views returned to callers.
//
// Documents are plain structs with JSON tags; the store persists them as JSON
// and decodes them back with the same tags. Collection names live in the
// repository package, not here.
package model

import (
	"slices"
	"strings"
	"time"
)

// Role is the coarse-grained role a user registered with.
type Role string

const (
	RoleTeacher Role = "TEACHER"
	RoleStudent Role = "STUDENT"
)

// ParseRole normalizes a role name. Unknown names return ("", false).
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleTeacher:
		return RoleTeacher, true
	case RoleStudent:
		return RoleStudent, true
	}
	return "", false
}

const DefaultTheme = "LIGHT"

// User is a profile keyed by the identity provider's user id.
//
// The gamification fields only mean something for students. They are plain
// integers rather than pointers: a non-positive Level or XPToNextLevel is
// treated as "not initialized" and normalized by the leveling engine before
// any XP is applied.
type User struct {
	ID              string    `json:"userId"`
	DisplayName     string    `json:"displayName"`
	Email           string    `json:"email"`
	Role            Role      `json:"role"`
	AvatarURL       string    `json:"avatarUrl,omitempty"`
	ThemePreference string    `json:"themePreference,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`

	Level         int   `json:"level,omitempty"`
	CurrentXP     int64 `json:"currentXp,omitempty"`
	XPToNextLevel int64 `json:"xpToNextLevel,omitempty"`

	StudentOfClassrooms []string `json:"studentOfClassrooms"`
	TeacherOfClassrooms []string `json:"teacherOfClassrooms"`
}

// StampServerTime sets CreatedAt once and refreshes UpdatedAt on every write.
func (u *User) StampServerTime(now time.Time) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
}

func (u *User) IsStudent() bool { return u.Role == RoleStudent }
func (u *User) IsTeacher() bool { return u.Role == RoleTeacher }

// EnrolledIn reports whether classroomID is in the student's membership list.
func (u *User) EnrolledIn(classroomID string) bool {
	return slices.Contains(u.StudentOfClassrooms, classroomID)
}

// AddStudentClassroom appends classroomID unless it is already present.
// It returns false when nothing changed.
func (u *User) AddStudentClassroom(classroomID string) bool {
	if u.EnrolledIn(classroomID) {
		return false
	}
	u.StudentOfClassrooms = append(u.StudentOfClassrooms, classroomID)
	return true
}

// RemoveStudentClassroom drops classroomID from the membership list.
// It returns false when the id was not present.
func (u *User) RemoveStudentClassroom(classroomID string) bool {
	i := slices.Index(u.StudentOfClassrooms, classroomID)
	if i < 0 {
		return false
	}
	u.StudentOfClassrooms = slices.Delete(u.StudentOfClassrooms, i, i+1)
	return true
}
