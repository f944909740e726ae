package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"portal-sync/internal/domain"
	"portal-sync/internal/lms"
	"portal-sync/internal/store"
)

// ErrIdentityConflict is returned when the local user matching a remote
// user's email is already linked to a different remote id.
var ErrIdentityConflict = errors.New("identity conflict")

// Resolver maps LMS records onto local records.
type Resolver struct {
	store store.Store
	now   func() time.Time
}

func NewResolver(s store.Store, now func() time.Time) *Resolver {
	return &Resolver{store: s, now: now}
}

// ResolveCourse matches by remote id only. A nil course with isNew=true
// means the caller should create it.
func (r *Resolver) ResolveCourse(ctx context.Context, rc lms.Course) (c *domain.Course, isNew bool, err error) {
	c, err = r.store.FindCourseByRemoteID(ctx, rc.ID)
	if err != nil {
		return nil, false, fmt.Errorf("find course by remote id %d: %w", rc.ID, err)
	}
	return c, c == nil, nil
}

// UserMatch is the outcome of ResolveUser.
type UserMatch struct {
	User *domain.User
	// IsNew: no local user matched; User is nil.
	IsNew bool
	// Linked: User was found by email and has just been linked to the
	// remote id.
	Linked bool
}

// ResolveUser matches by remote id, then by email. An email match without a
// remote id is adopted: its remote id is set and persisted, other fields are
// left alone.
func (r *Resolver) ResolveUser(ctx context.Context, ru lms.User) (UserMatch, error) {
	u, err := r.store.FindUserByRemoteID(ctx, ru.ID)
	if err != nil {
		return UserMatch{}, fmt.Errorf("find user by remote id %d: %w", ru.ID, err)
	}
	if u != nil {
		return UserMatch{User: u}, nil
	}

	email := normEmail(ru.Email)
	if email == "" {
		return UserMatch{IsNew: true}, nil
	}
	u, err = r.store.FindUserByEmail(ctx, email)
	if err != nil {
		return UserMatch{}, fmt.Errorf("find user by email: %w", err)
	}
	if u == nil {
		return UserMatch{IsNew: true}, nil
	}
	if u.RemoteID != nil {
		return UserMatch{}, fmt.Errorf("%w: user %s is linked to remote id %d, not %d",
			ErrIdentityConflict, u.ID, *u.RemoteID, ru.ID)
	}

	u.RemoteID = domain.Int64Ptr(ru.ID)
	u.SyncStatus = domain.SyncSynced
	u.LastSyncError = ""
	u.LastSyncedAt = domain.TimePtr(r.now())
	if err := r.store.UpdateUser(ctx, u); err != nil {
		return UserMatch{}, fmt.Errorf("link user %s to remote id %d: %w", u.ID, ru.ID, err)
	}
	return UserMatch{User: u, Linked: true}, nil
}
