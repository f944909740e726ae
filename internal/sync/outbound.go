package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"portal-sync/internal/domain"
	"portal-sync/internal/lms"
	"portal-sync/internal/platform/logger"
	"portal-sync/internal/store"
)

// RoleIDs are the LMS role ids used when enrolling a user of each portal
// role.
type RoleIDs struct {
	Student int64
	Teacher int64
	Admin   int64
}

func (ids RoleIDs) For(role domain.Role) int64 {
	switch role {
	case domain.RoleAdmin:
		return ids.Admin
	case domain.RoleTeacher:
		return ids.Teacher
	default:
		return ids.Student
	}
}

// Propagator pushes locally created users and enrollments to the LMS.
// Failed records carry a fresh LastSyncedAt and are not selected again
// until the cooldown has passed.
type Propagator struct {
	remote   Remote
	store    store.Store
	roleIDs  RoleIDs
	batch    int
	cooldown time.Duration
	now      func() time.Time
	log      *logger.Logger
}

func NewPropagator(remote Remote, st store.Store, roleIDs RoleIDs, batch int, cooldown time.Duration, now func() time.Time, log *logger.Logger) *Propagator {
	if batch <= 0 {
		batch = 50
	}
	return &Propagator{
		remote:   remote,
		store:    st,
		roleIDs:  roleIDs,
		batch:    batch,
		cooldown: cooldown,
		now:      now,
		log:      log.With("component", "outbound"),
	}
}

// Run pushes users first so the enrollment step finds them linked.
func (p *Propagator) Run(ctx context.Context) (users, enrollments Report) {
	users = p.pushUsers(ctx)
	enrollments = p.pushEnrollments(ctx)
	return users, enrollments
}

func (p *Propagator) cutoff() time.Time {
	return p.now().Add(-p.cooldown)
}

func (p *Propagator) pushUsers(ctx context.Context) Report {
	start := time.Now()
	rep := newReport(EntityOutboundUsers)
	defer func() { rep.Duration = time.Since(start) }()

	pending, err := p.store.PendingUsers(ctx, p.cutoff(), p.batch)
	if err != nil {
		rep.Err = fmt.Errorf("list pending users: %w", err)
		p.log.Error("pending user listing failed", "error", err)
		return rep
	}

	for _, u := range pending {
		if err := ctx.Err(); err != nil {
			rep.Err = err
			break
		}
		rep.Examined++
		created, err := p.linkUser(ctx, u)
		if err != nil {
			p.log.Warn("user push failed", "user_id", u.ID, "email", u.Email, "op", "get_or_create_user", "error", err)
			rep.fail("user %s: %v", u.ID, err)
			p.markUserError(ctx, u, err)
			continue
		}
		if created {
			rep.Created++
		} else {
			rep.Updated++
		}
	}
	if rep.Examined > 0 {
		p.log.Info("pending users pushed", "examined", rep.Examined, "created", rep.Created,
			"linked", rep.Updated, "errored", rep.Errored)
	}
	return rep
}

// linkUser obtains a remote id for u (creating the LMS account when none
// matches its email) and stores it.
func (p *Propagator) linkUser(ctx context.Context, u *domain.User) (bool, error) {
	id, created, err := p.remote.GetOrCreateUser(ctx, lms.NewUser{
		Email:     normEmail(u.Email),
		FirstName: u.FirstName,
		LastName:  u.LastName,
	})
	if err != nil {
		return false, err
	}
	u.RemoteID = domain.Int64Ptr(id)
	u.SyncStatus = domain.SyncSynced
	u.LastSyncError = ""
	u.LastSyncedAt = domain.TimePtr(p.now())
	if err := p.store.UpdateUser(ctx, u); err != nil {
		u.RemoteID = nil
		return false, fmt.Errorf("store remote id %d: %w", id, err)
	}
	return created, nil
}

func (p *Propagator) markUserError(ctx context.Context, u *domain.User, cause error) {
	u.SyncStatus = domain.SyncError
	u.LastSyncError = cause.Error()
	u.LastSyncedAt = domain.TimePtr(p.now())
	if err := p.store.UpdateUser(ctx, u); err != nil {
		p.log.Error("marking user failed", "user_id", u.ID, "error", err)
	}
}

var errCourseNotLinked = errors.New("course is not linked to the LMS")

func (p *Propagator) pushEnrollments(ctx context.Context) Report {
	start := time.Now()
	rep := newReport(EntityOutboundEnrollments)
	defer func() { rep.Duration = time.Since(start) }()

	pending, err := p.store.PendingEnrollments(ctx, p.cutoff(), p.batch)
	if err != nil {
		rep.Err = fmt.Errorf("list pending enrollments: %w", err)
		p.log.Error("pending enrollment listing failed", "error", err)
		return rep
	}

	for _, e := range pending {
		if err := ctx.Err(); err != nil {
			rep.Err = err
			break
		}
		rep.Examined++
		if err := p.pushEnrollment(ctx, e); err != nil {
			p.log.Warn("enrollment push failed", "enrollment_id", e.ID, "user_id", e.UserID,
				"course_id", e.CourseID, "op", "enroll_user", "error", err)
			rep.fail("enrollment %s: %v", e.ID, err)
			p.markEnrollmentError(ctx, e, err)
			continue
		}
		rep.Created++
	}
	if rep.Examined > 0 {
		p.log.Info("pending enrollments pushed", "examined", rep.Examined, "created", rep.Created, "errored", rep.Errored)
	}
	return rep
}

func (p *Propagator) pushEnrollment(ctx context.Context, e *domain.Enrollment) error {
	c, err := p.store.FindCourseByID(ctx, e.CourseID)
	if err != nil {
		return fmt.Errorf("find course: %w", err)
	}
	if c == nil || c.RemoteID == nil {
		return errCourseNotLinked
	}
	u, err := p.store.FindUserByID(ctx, e.UserID)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if u == nil {
		return fmt.Errorf("user %s not found", e.UserID)
	}
	if u.RemoteID == nil {
		if _, err := p.linkUser(ctx, u); err != nil {
			return fmt.Errorf("link user: %w", err)
		}
	}

	if err := p.remote.EnrollUser(ctx, *u.RemoteID, *c.RemoteID, p.roleIDs.For(u.Role)); err != nil {
		return err
	}
	e.SyncStatus = domain.SyncSynced
	e.LastSyncError = ""
	e.LastSyncedAt = domain.TimePtr(p.now())
	if err := p.store.UpdateEnrollment(ctx, e); err != nil {
		return fmt.Errorf("mark enrollment synced: %w", err)
	}
	return nil
}

func (p *Propagator) markEnrollmentError(ctx context.Context, e *domain.Enrollment, cause error) {
	e.SyncStatus = domain.SyncError
	e.LastSyncError = cause.Error()
	e.LastSyncedAt = domain.TimePtr(p.now())
	if err := p.store.UpdateEnrollment(ctx, e); err != nil {
		p.log.Error("marking enrollment failed", "enrollment_id", e.ID, "error", err)
	}
}
