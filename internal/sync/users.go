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

// UserReconciler upserts every LMS user of one auth method. The plain
// listing carries no roles, so new users start as students.
type UserReconciler struct {
	remote     Remote
	store      store.Store
	resolver   *Resolver
	authMethod string
	now        func() time.Time
	log        *logger.Logger
}

func NewUserReconciler(remote Remote, st store.Store, resolver *Resolver, authMethod string, now func() time.Time, log *logger.Logger) *UserReconciler {
	return &UserReconciler{
		remote:     remote,
		store:      st,
		resolver:   resolver,
		authMethod: authMethod,
		now:        now,
		log:        log.With("component", "user_reconciler"),
	}
}

func (r *UserReconciler) Run(ctx context.Context) Report {
	start := time.Now()
	rep := newReport(EntityUsers)
	defer func() { rep.Duration = time.Since(start) }()

	users, err := r.remote.ListUsersByAuthMethod(ctx, r.authMethod)
	if err != nil {
		rep.Err = fmt.Errorf("list users: %w", err)
		r.log.Error("user listing failed", "auth", r.authMethod, "error", err)
		return rep
	}

	for _, ru := range users {
		if err := ctx.Err(); err != nil {
			rep.Err = err
			break
		}
		rep.Examined++
		if normEmail(ru.Email) == "" {
			r.log.Debug("user without email skipped", "remote_id", ru.ID)
			rep.Skipped++
			continue
		}
		outcome, err := r.reconcile(ctx, ru)
		if err != nil {
			r.log.Warn("user sync failed", "remote_id", ru.ID, "email", ru.Email, "op", "upsert_user", "error", err)
			rep.fail("user %d: %v", ru.ID, err)
			continue
		}
		outcome.count(&rep)
	}
	r.log.Info("users reconciled", "examined", rep.Examined, "created", rep.Created,
		"updated", rep.Updated, "skipped", rep.Skipped, "errored", rep.Errored)
	return rep
}

func (r *UserReconciler) reconcile(ctx context.Context, ru lms.User) (outcome, error) {
	m, err := r.resolver.ResolveUser(ctx, ru)
	if err != nil {
		return 0, err
	}
	if m.IsNew {
		if _, err := createUser(ctx, r.store, ru, domain.RoleStudent, r.now()); err != nil {
			return 0, err
		}
		return outcomeCreated, nil
	}

	u := m.User
	if !applyUserProfile(u, ru) {
		if m.Linked {
			return outcomeUpdated, nil
		}
		return outcomeSkipped, nil
	}
	u.LastSyncedAt = domain.TimePtr(r.now())
	if err := r.store.UpdateUser(ctx, u); err != nil {
		return 0, fmt.Errorf("update user %s: %w", u.ID, err)
	}
	return outcomeUpdated, nil
}

// createUser materializes a local user from an LMS record.
func createUser(ctx context.Context, st store.Store, ru lms.User, role domain.Role, now time.Time) (*domain.User, error) {
	email := normEmail(ru.Email)
	if email == "" {
		return nil, errors.New("remote user has no email")
	}
	u := &domain.User{
		RemoteID:     domain.Int64Ptr(ru.ID),
		Email:        email,
		FirstName:    clean(ru.FirstName),
		LastName:     clean(ru.LastName),
		Role:         role,
		Status:       domain.UserActive,
		SyncStatus:   domain.SyncSynced,
		LastSyncedAt: domain.TimePtr(now),
	}
	if err := st.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}
