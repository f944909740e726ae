package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"portal-sync/internal/domain"
	"portal-sync/internal/platform/logger"
)

type GormStore struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGormStore(db *gorm.DB, baseLog *logger.Logger) *GormStore {
	return &GormStore{db: db, log: baseLog.With("repo", "GormStore")}
}

func (s *GormStore) DB() *gorm.DB { return s.db }

/* -------- courses -------- */

func (s *GormStore) FindCourseByRemoteID(ctx context.Context, remoteID int64) (*domain.Course, error) {
	return first[domain.Course](s.db.WithContext(ctx).Where("remote_id = ?", remoteID))
}

func (s *GormStore) FindCourseByID(ctx context.Context, id uuid.UUID) (*domain.Course, error) {
	return first[domain.Course](s.db.WithContext(ctx).Where("id = ?", id))
}

func (s *GormStore) CreateCourse(ctx context.Context, c *domain.Course) error {
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *GormStore) UpdateCourse(ctx context.Context, c *domain.Course) error {
	return s.db.WithContext(ctx).Save(c).Error
}

func (s *GormStore) ListLinkedCourses(ctx context.Context) ([]*domain.Course, error) {
	var out []*domain.Course
	if err := s.db.WithContext(ctx).
		Where("remote_id IS NOT NULL").
		Order("remote_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

/* -------- users -------- */

func (s *GormStore) FindUserByRemoteID(ctx context.Context, remoteID int64) (*domain.User, error) {
	return first[domain.User](s.db.WithContext(ctx).Where("remote_id = ?", remoteID))
}

// FindUserByEmail matches case-insensitively; emails are stored as given.
func (s *GormStore) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	return first[domain.User](s.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(email)))
}

func (s *GormStore) FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return first[domain.User](s.db.WithContext(ctx).Where("id = ?", id))
}

func (s *GormStore) CreateUser(ctx context.Context, u *domain.User) error {
	return s.db.WithContext(ctx).Create(u).Error
}

func (s *GormStore) UpdateUser(ctx context.Context, u *domain.User) error {
	return s.db.WithContext(ctx).Save(u).Error
}

/* -------- enrollments -------- */

func (s *GormStore) FindEnrollment(ctx context.Context, userID, courseID uuid.UUID) (*domain.Enrollment, error) {
	return first[domain.Enrollment](s.db.WithContext(ctx).Where("user_id = ? AND course_id = ?", userID, courseID))
}

func (s *GormStore) CreateEnrollment(ctx context.Context, e *domain.Enrollment) error {
	return s.db.WithContext(ctx).Create(e).Error
}

func (s *GormStore) UpdateEnrollment(ctx context.Context, e *domain.Enrollment) error {
	return s.db.WithContext(ctx).Save(e).Error
}

// candidateRow is one joined row of ListCompletionCandidates.
type candidateRow struct {
	domain.Enrollment
	UserRemoteID   int64 `gorm:"column:user_remote_id"`
	CourseRemoteID int64 `gorm:"column:course_remote_id"`
}

// ListCompletionCandidates runs as a single join so the number of bound
// parameters does not grow with the number of enrollments.
func (s *GormStore) ListCompletionCandidates(ctx context.Context) ([]CompletionCandidate, error) {
	var rows []candidateRow
	if err := s.db.WithContext(ctx).
		Table("portal_enrollment AS e").
		Select("e.*, u.remote_id AS user_remote_id, c.remote_id AS course_remote_id").
		Joins("JOIN portal_user u ON u.id = e.user_id").
		Joins("JOIN portal_course c ON c.id = e.course_id").
		Where("e.status = ?", domain.EnrollmentEnrolled).
		Where("u.remote_id IS NOT NULL AND c.remote_id IS NOT NULL").
		Order("e.course_id, e.user_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	out := make([]CompletionCandidate, 0, len(rows))
	for i := range rows {
		e := rows[i].Enrollment
		out = append(out, CompletionCandidate{
			Enrollment:     &e,
			UserRemoteID:   rows[i].UserRemoteID,
			CourseRemoteID: rows[i].CourseRemoteID,
		})
	}
	return out, nil
}

/* -------- outbound queries -------- */

func (s *GormStore) PendingUsers(ctx context.Context, cutoff time.Time, limit int) ([]*domain.User, error) {
	var out []*domain.User
	q := s.db.WithContext(ctx).
		Where("remote_id IS NULL").
		Where("status = ?", domain.UserActive).
		Where("(last_synced_at IS NULL OR last_synced_at <= ?)", cutoff).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) PendingEnrollments(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Enrollment, error) {
	var out []*domain.Enrollment
	q := s.db.WithContext(ctx).
		Where("status = ?", domain.EnrollmentEnrolled).
		Where("sync_status <> ?", domain.SyncSynced).
		Where("(last_synced_at IS NULL OR last_synced_at <= ?)", cutoff).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

/* -------- stats -------- */

// ListSyncErrors returns up to limit records per table in sync_status=error,
// most recent attempt first.
func (s *GormStore) ListSyncErrors(ctx context.Context, limit int) ([]SyncErrorRow, error) {
	tx := s.db.WithContext(ctx)
	q := func(model interface{}, cols string) *gorm.DB {
		q := tx.Model(model).
			Select(cols).
			Where("sync_status = ?", domain.SyncError).
			Order("last_synced_at DESC")
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	}

	var out []SyncErrorRow

	var courses []*domain.Course
	if err := q(&domain.Course{}, "id, remote_id, last_sync_error, last_synced_at").Find(&courses).Error; err != nil {
		return nil, err
	}
	for _, c := range courses {
		out = append(out, SyncErrorRow{Entity: "course", ID: c.ID, RemoteID: c.RemoteID, Error: c.LastSyncError, LastSyncedAt: c.LastSyncedAt})
	}

	var users []*domain.User
	if err := q(&domain.User{}, "id, remote_id, last_sync_error, last_synced_at").Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out = append(out, SyncErrorRow{Entity: "user", ID: u.ID, RemoteID: u.RemoteID, Error: u.LastSyncError, LastSyncedAt: u.LastSyncedAt})
	}

	var enrollments []*domain.Enrollment
	if err := q(&domain.Enrollment{}, "id, last_sync_error, last_synced_at").Find(&enrollments).Error; err != nil {
		return nil, err
	}
	for _, e := range enrollments {
		out = append(out, SyncErrorRow{Entity: "enrollment", ID: e.ID, Error: e.LastSyncError, LastSyncedAt: e.LastSyncedAt})
	}
	return out, nil
}

func (s *GormStore) Stats(ctx context.Context) (Stats, error) {
	var (
		out Stats
		err error
	)
	if out.Courses, err = s.entityStats(ctx, &domain.Course{}); err != nil {
		return out, err
	}
	if out.Users, err = s.entityStats(ctx, &domain.User{}); err != nil {
		return out, err
	}
	if out.Enrollments, err = s.entityStats(ctx, &domain.Enrollment{}); err != nil {
		return out, err
	}
	return out, nil
}

func (s *GormStore) entityStats(ctx context.Context, model interface{}) (EntityStats, error) {
	var st EntityStats
	tx := s.db.WithContext(ctx)

	if err := tx.Model(model).Count(&st.Total).Error; err != nil {
		return st, err
	}
	if err := tx.Model(model).Where("sync_status = ?", domain.SyncSynced).Count(&st.Synced).Error; err != nil {
		return st, err
	}
	if err := tx.Model(model).Where("sync_status = ?", domain.SyncPending).Count(&st.Pending).Error; err != nil {
		return st, err
	}
	if err := tx.Model(model).Where("sync_status = ?", domain.SyncError).Count(&st.Errored).Error; err != nil {
		return st, err
	}

	var last []time.Time
	if err := tx.Model(model).
		Where("last_synced_at IS NOT NULL").
		Order("last_synced_at DESC").
		Limit(1).
		Pluck("last_synced_at", &last).Error; err != nil {
		return st, err
	}
	if len(last) == 1 {
		t := last[0].UTC()
		st.LastSyncedAt = &t
	}
	return st, nil
}

func first[T any](q *gorm.DB) (*T, error) {
	var rows []*T
	if err := q.Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}
