package model

import "time"

// Classroom is owned by one teacher and joined by students through its
// UniqueCode. StudentCount and ActivityCount are maintained inside the same
// transaction that changes the enrollment markers or assigned games they count.
type Classroom struct {
	ID            string    `json:"classroomId"`
	Name          string    `json:"name"`
	TeacherID     string    `json:"teacherId"`
	TeacherName   string    `json:"teacherName"`
	UniqueCode    string    `json:"uniqueCode"`
	Description   string    `json:"description,omitempty"`
	IconURL       string    `json:"iconUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	StudentCount  int       `json:"studentCount"`
	ActivityCount int       `json:"activityCount"`
}

func (c *Classroom) StampServerTime(now time.Time) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
}

// OwnedBy reports whether teacherID is the owning teacher.
func (c *Classroom) OwnedBy(teacherID string) bool {
	return c.TeacherID != "" && c.TeacherID == teacherID
}

// ClassroomPatch carries the optional fields of an update. Nil means "leave
// unchanged"; an empty Name is also ignored.
type ClassroomPatch struct {
	Name        *string
	Description *string
	IconURL     *string
}

// Apply copies the present fields onto c and reports whether anything changed.
func (p ClassroomPatch) Apply(c *Classroom) bool {
	changed := false
	if p.Name != nil && *p.Name != "" && *p.Name != c.Name {
		c.Name = *p.Name
		changed = true
	}
	if p.Description != nil && *p.Description != c.Description {
		c.Description = *p.Description
		changed = true
	}
	if p.IconURL != nil && *p.IconURL != c.IconURL {
		c.IconURL = *p.IconURL
		changed = true
	}
	return changed
}

// Enrollment is the marker document stored under
// classrooms/{classroomId}/enrolledStudents/{studentId}.
type Enrollment struct {
	StudentID    string    `json:"studentId"`
	StudentName  string    `json:"studentName"`
	StudentEmail string    `json:"studentEmail"`
	DateEnrolled time.Time `json:"dateEnrolled"`
}

func (e *Enrollment) StampServerTime(now time.Time) {
	if e.DateEnrolled.IsZero() {
		e.DateEnrolled = now
	}
}
