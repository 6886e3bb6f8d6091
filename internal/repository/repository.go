// Package repository gives the services typed access to the document store.
//
// Every function takes a store.Reader (or a store.Tx for writes), so the same
// accessor works on a transaction and on the bare store. Absent documents come
// back as apperror.NotFound and undecodable ones as apperror.Internal; the
// services never see the store's own sentinels.
//
// Collection layout:
//
//	users/{userId}
//	classrooms/{classroomId}
//	classrooms/{classroomId}/assignedGames/{assignedGameId}
//	classrooms/{classroomId}/enrolledStudents/{studentId}
//	studentGameAttempts/{attemptId}
//	games/{libraryGameId}
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakif/brightminds/internal/apperror"
	"github.com/sakif/brightminds/internal/store"
)

const (
	Users            = "users"
	Classrooms       = "classrooms"
	AssignedGames    = "assignedGames"
	EnrolledStudents = "enrolledStudents"
	Attempts         = "studentGameAttempts"
	Games            = "games"
)

func UserRef(id string) store.Ref      { return store.Doc(Users, id) }
func ClassroomRef(id string) store.Ref { return store.Doc(Classrooms, id) }
func AttemptRef(id string) store.Ref   { return store.Doc(Attempts, id) }
func GameRef(id string) store.Ref      { return store.Doc(Games, id) }

func AssignedGameRef(classroomID, id string) store.Ref {
	return ClassroomRef(classroomID).Sub(AssignedGames, id)
}

func EnrollmentRef(classroomID, studentID string) store.Ref {
	return ClassroomRef(classroomID).Sub(EnrolledStudents, studentID)
}

// get loads one document of type T. resource names it in error messages.
func get[T any](ctx context.Context, r store.Reader, ref store.Ref, resource string) (*T, error) {
	var v T
	if err := r.Get(ctx, ref, &v); err != nil {
		return nil, translate(err, resource, ref)
	}
	return &v, nil
}

// list decodes every snapshot a query returns.
func list[T any](ctx context.Context, r store.Reader, q store.Query, resource string) ([]T, error) {
	snaps, err := r.Query(ctx, q)
	if err != nil {
		return nil, translate(err, resource, store.Ref{Collection: q.Collection})
	}
	out := make([]T, 0, len(snaps))
	for _, s := range snaps {
		var v T
		if err := s.DataTo(&v); err != nil {
			return nil, translate(err, resource, s.Ref)
		}
		out = append(out, v)
	}
	return out, nil
}

// first returns the first match of q or NotFound keyed by key=value.
func first[T any](ctx context.Context, r store.Reader, q store.Query, resource, key, value string) (*T, error) {
	found, err := list[T](ctx, r, q.Take(1), resource)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, apperror.NotFoundBy(resource, key, value)
	}
	return &found[0], nil
}

func put(ctx context.Context, tx store.Tx, ref store.Ref, doc any) error {
	if err := tx.Set(ctx, ref, doc); err != nil {
		return fmt.Errorf("repository: writing %s: %w", ref, err)
	}
	return nil
}

func translate(err error, resource string, ref store.Ref) error {
	switch {
	case errors.Is(err, store.ErrNoDocument):
		return apperror.NotFound(resource, ref.ID)
	case errors.Is(err, store.ErrDecode):
		return apperror.Internal(fmt.Sprintf("stored %s %s cannot be read", resource, ref.ID), err)
	default:
		return fmt.Errorf("repository: reading %s: %w", ref, err)
	}
}
