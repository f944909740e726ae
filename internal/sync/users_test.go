package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal-sync/internal/domain"
	"portal-sync/internal/lms"
	"portal-sync/internal/store/storetest"
)

func TestUserReconcilerLinksByEmail(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	local := storetest.SeedUser(t, ctx, h.store, nil, "a@x.com", domain.RoleTeacher)
	h.remote.users = []lms.User{{ID: 42, Email: "A@X.com", FirstName: "Ana", LastName: "Lee"}}

	rep := h.engine.users.Run(ctx)
	require.NoError(t, rep.Err)
	assert.Equal(t, 0, rep.Created)
	assert.Equal(t, 1, rep.Updated)

	got, err := h.store.FindUserByRemoteID(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, local.ID, got.ID)
	assert.Equal(t, domain.RoleTeacher, got.Role)
	assert.Equal(t, domain.SyncSynced, got.SyncStatus)

	stats, err := h.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Users.Total)

	rep = h.engine.users.Run(ctx)
	assert.Equal(t, 1, rep.Skipped)
	assert.False(t, rep.Changed())
}

func TestUserReconcilerCreatesStudents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.remote.users = []lms.User{
		{ID: 7, Email: " New@X.com ", FirstName: "New", LastName: "User"},
		{ID: 8, Email: ""},
	}

	rep := h.engine.users.Run(ctx)
	assert.Equal(t, 2, rep.Examined)
	assert.Equal(t, 1, rep.Created)
	assert.Equal(t, 1, rep.Skipped)

	u, err := h.store.FindUserByRemoteID(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "new@x.com", u.Email)
	assert.Equal(t, domain.RoleStudent, u.Role)
	assert.Equal(t, domain.UserActive, u.Status)
}

func TestUserReconcilerUpdatesProfile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	storetest.SeedUser(t, ctx, h.store, domain.Int64Ptr(42), "a@x.com", domain.RoleStudent)
	h.remote.users = []lms.User{{ID: 42, Email: "a@x.com", FirstName: "Ana", LastName: "Lee"}}

	rep := h.engine.users.Run(ctx)
	assert.Equal(t, 1, rep.Updated)

	u, err := h.store.FindUserByRemoteID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "Ana", u.FirstName)
	assert.Equal(t, "Lee", u.LastName)
}

func TestUserReconcilerReportsIdentityConflict(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	storetest.SeedUser(t, ctx, h.store, domain.Int64Ptr(41), "a@x.com", domain.RoleStudent)
	h.remote.users = []lms.User{
		{ID: 42, Email: "a@x.com"},
		{ID: 43, Email: "b@x.com"},
	}

	rep := h.engine.users.Run(ctx)
	assert.Equal(t, 1, rep.Errored)
	assert.Equal(t, 1, rep.Created)
	require.Len(t, rep.Errors, 1)
	assert.Contains(t, rep.Errors[0], ErrIdentityConflict.Error())

	u, err := h.store.FindUserByRemoteID(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, u, "conflicting remote user is neither linked nor duplicated")
}

func TestResolveUserPrefersRemoteID(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	byRemote := storetest.SeedUser(t, ctx, h.store, domain.Int64Ptr(42), "old@x.com", domain.RoleStudent)
	storetest.SeedUser(t, ctx, h.store, nil, "new@x.com", domain.RoleStudent)

	r := NewResolver(h.store, h.clock.Now)
	m, err := r.ResolveUser(ctx, lms.User{ID: 42, Email: "new@x.com"})
	require.NoError(t, err)
	assert.False(t, m.IsNew)
	assert.False(t, m.Linked)
	assert.Equal(t, byRemote.ID, m.User.ID)

	m, err = r.ResolveUser(ctx, lms.User{ID: 99, Email: "none@x.com"})
	require.NoError(t, err)
	assert.True(t, m.IsNew)
	assert.Nil(t, m.User)
}
