package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"portal-sync/internal/domain"
)

// ErrDuplicate is returned when a write violates a uniqueness constraint
// (remote id, email, or the (user, course) enrollment pair).
var ErrDuplicate = gorm.ErrDuplicatedKey

// Store is the persistence contract consumed by the sync engine. Find methods
// return (nil, nil) when nothing matches.
type Store interface {
	FindCourseByRemoteID(ctx context.Context, remoteID int64) (*domain.Course, error)
	FindCourseByID(ctx context.Context, id uuid.UUID) (*domain.Course, error)
	CreateCourse(ctx context.Context, c *domain.Course) error
	UpdateCourse(ctx context.Context, c *domain.Course) error
	ListLinkedCourses(ctx context.Context) ([]*domain.Course, error)

	FindUserByRemoteID(ctx context.Context, remoteID int64) (*domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	CreateUser(ctx context.Context, u *domain.User) error
	UpdateUser(ctx context.Context, u *domain.User) error

	FindEnrollment(ctx context.Context, userID, courseID uuid.UUID) (*domain.Enrollment, error)
	CreateEnrollment(ctx context.Context, e *domain.Enrollment) error
	UpdateEnrollment(ctx context.Context, e *domain.Enrollment) error
	ListCompletionCandidates(ctx context.Context) ([]CompletionCandidate, error)

	// PendingUsers returns active users without a remote id whose last
	// attempt is older than cutoff (or who were never attempted).
	PendingUsers(ctx context.Context, cutoff time.Time, limit int) ([]*domain.User, error)
	// PendingEnrollments returns enrolled, not yet synced enrollments whose
	// last attempt is older than cutoff (or which were never attempted).
	PendingEnrollments(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Enrollment, error)

	Stats(ctx context.Context) (Stats, error)
}

// CompletionCandidate is an enrolled enrollment whose user and course are
// both linked to the LMS.
type CompletionCandidate struct {
	Enrollment     *domain.Enrollment
	UserRemoteID   int64
	CourseRemoteID int64
}

// EntityStats summarizes one table for health reporting.
type EntityStats struct {
	Total        int64      `json:"total"`
	Synced       int64      `json:"synced"`
	Pending      int64      `json:"pending"`
	Errored      int64      `json:"errored"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// SyncErrorRow is a local record whose last sync attempt failed.
type SyncErrorRow struct {
	Entity       string
	ID           uuid.UUID
	RemoteID     *int64
	Error        string
	LastSyncedAt *time.Time
}

type Stats struct {
	Courses     EntityStats `json:"courses"`
	Users       EntityStats `json:"users"`
	Enrollments EntityStats `json:"enrollments"`
}

// IsDuplicate reports whether err is a uniqueness violation.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
