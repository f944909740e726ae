// Package storetest provides an in-memory portal database for tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"portal-sync/internal/domain"
	"portal-sync/internal/platform/logger"
	"portal-sync/internal/store"
)

// New opens a fresh migrated sqlite database private to tb.
func New(tb testing.TB) *store.GormStore {
	tb.Helper()
	db, err := store.Open("sqlite", ":memory:", logger.Nop())
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return store.NewGormStore(db, logger.Nop())
}

func SeedCourse(tb testing.TB, ctx context.Context, s store.Store, remoteID *int64, title string) *domain.Course {
	tb.Helper()
	c := &domain.Course{
		RemoteID:   remoteID,
		Title:      title,
		Currency:   "USD",
		SyncStatus: domain.SyncSynced,
	}
	if err := s.CreateCourse(ctx, c); err != nil {
		tb.Fatalf("seed course: %v", err)
	}
	return c
}

func SeedUser(tb testing.TB, ctx context.Context, s store.Store, remoteID *int64, email string, role domain.Role) *domain.User {
	tb.Helper()
	status := domain.SyncPending
	if remoteID != nil {
		status = domain.SyncSynced
	}
	u := &domain.User{
		RemoteID:   remoteID,
		Email:      email,
		FirstName:  "A",
		LastName:   "B",
		Role:       role,
		Status:     domain.UserActive,
		SyncStatus: status,
	}
	if err := s.CreateUser(ctx, u); err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedEnrollment(tb testing.TB, ctx context.Context, s store.Store, u *domain.User, c *domain.Course, status domain.EnrollmentStatus, sync domain.SyncStatus) *domain.Enrollment {
	tb.Helper()
	e := &domain.Enrollment{
		UserID:     u.ID,
		CourseID:   c.ID,
		Status:     status,
		EnrolledAt: time.Now().UTC(),
		SyncStatus: sync,
	}
	if err := s.CreateEnrollment(ctx, e); err != nil {
		tb.Fatalf("seed enrollment: %v", err)
	}
	return e
}
