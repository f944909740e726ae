package sync

import (
	"context"

	"portal-sync/internal/lms"
)

// Remote is the part of the LMS client the engine needs. *lms.Client
// implements it; tests use an in-memory fake.
type Remote interface {
	ListCourses(ctx context.Context) ([]lms.Course, error)
	ListUsersByAuthMethod(ctx context.Context, auth string) ([]lms.User, error)
	GetUserByEmail(ctx context.Context, email string) (*lms.User, error)
	ListEnrolledUsers(ctx context.Context, courseID int64) ([]lms.User, error)
	GetCompletion(ctx context.Context, courseID, userID int64) (lms.Completion, error)
	GetOrCreateUser(ctx context.Context, u lms.NewUser) (id int64, created bool, err error)
	EnrollUser(ctx context.Context, userID, courseID, roleID int64) error
}

var _ Remote = (*lms.Client)(nil)
