package sync

import (
	"context"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"portal-sync/internal/lms"
	"portal-sync/internal/platform/logger"
	"portal-sync/internal/store"
	"portal-sync/internal/store/storetest"
)

type pair struct{ course, user int64 }

// fakeRemote is an in-memory LMS. Outbound writes show up in later
// listings, so multi-pass tests converge the way a real site would.
type fakeRemote struct {
	mu stdsync.Mutex

	courses    []lms.Course
	coursesErr error
	users      []lms.User
	usersErr   error

	enrolled    map[int64][]lms.User
	enrolledErr map[int64]error

	completions   map[pair]lms.Completion
	completionErr map[int64]error

	getOrCreateErr map[string]error
	enrollErr      error

	nextID int64
	calls  map[string]int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		enrolled:       map[int64][]lms.User{},
		enrolledErr:    map[int64]error{},
		completions:    map[pair]lms.Completion{},
		completionErr:  map[int64]error{},
		getOrCreateErr: map[string]error{},
		nextID:         1000,
		calls:          map[string]int{},
	}
}

func (f *fakeRemote) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) ListCourses(context.Context) ([]lms.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ListCourses"]++
	return append([]lms.Course(nil), f.courses...), f.coursesErr
}

func (f *fakeRemote) ListUsersByAuthMethod(context.Context, string) ([]lms.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ListUsersByAuthMethod"]++
	return append([]lms.User(nil), f.users...), f.usersErr
}

func (f *fakeRemote) GetUserByEmail(_ context.Context, email string) (*lms.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetUserByEmail"]++
	if u, ok := f.findByEmail(email); ok {
		return &u, nil
	}
	return nil, &lms.Error{Op: "get_user_by_email", Kind: lms.KindNotFound}
}

func (f *fakeRemote) findByEmail(email string) (lms.User, bool) {
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return u, true
		}
	}
	return lms.User{}, false
}

func (f *fakeRemote) ListEnrolledUsers(_ context.Context, courseID int64) ([]lms.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ListEnrolledUsers"]++
	if err := f.enrolledErr[courseID]; err != nil {
		return nil, err
	}
	return append([]lms.User(nil), f.enrolled[courseID]...), nil
}

func (f *fakeRemote) GetCompletion(_ context.Context, courseID, userID int64) (lms.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetCompletion"]++
	if err := f.completionErr[courseID]; err != nil {
		return lms.Completion{}, err
	}
	return f.completions[pair{courseID, userID}], nil
}

func (f *fakeRemote) GetOrCreateUser(_ context.Context, nu lms.NewUser) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetOrCreateUser"]++
	if err := f.getOrCreateErr[nu.Email]; err != nil {
		return 0, false, err
	}
	if u, ok := f.findByEmail(nu.Email); ok {
		return u.ID, false, nil
	}
	f.nextID++
	f.users = append(f.users, lms.User{ID: f.nextID, Email: nu.Email, FirstName: nu.FirstName, LastName: nu.LastName})
	return f.nextID, true, nil
}

var roleNames = map[int64]string{5: "student", 3: "editingteacher", 1: "manager"}

func (f *fakeRemote) EnrollUser(_ context.Context, userID, courseID, roleID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["EnrollUser"]++
	if f.enrollErr != nil {
		return f.enrollErr
	}
	for _, u := range f.users {
		if u.ID == userID {
			u.Roles = []lms.RoleAssignment{{RoleID: roleID, ShortName: roleNames[roleID]}}
			f.enrolled[courseID] = append(f.enrolled[courseID], u)
			return nil
		}
	}
	return &lms.Error{Op: "enrol", Kind: lms.KindRejected, Code: "invaliduserid"}
}

func rejected(msg string) error {
	return &lms.Error{Op: "test", Kind: lms.KindRejected, Code: "invalidparameter", Message: msg}
}

func enrolledUser(id int64, email string, roles ...string) lms.User {
	u := lms.User{ID: id, Email: email, FirstName: "F", LastName: "L"}
	for _, r := range roles {
		u.Roles = append(u.Roles, lms.RoleAssignment{ShortName: r})
	}
	return u
}

type fakeClock struct {
	mu stdsync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	remote *fakeRemote
	store  *store.GormStore
	clock  *fakeClock
	engine *Engine
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{remote: newFakeRemote(), store: storetest.New(t), clock: newFakeClock()}
	opts := Options{
		AuthMethod:       "manual",
		RolePolicy:       RolePolicyHighest,
		Workers:          1,
		OutboundBatch:    50,
		OutboundCooldown: 5 * time.Minute,
		CourseDefaults:   CourseDefaults{Currency: "USD"},
		RoleIDs:          RoleIDs{Student: 5, Teacher: 3, Admin: 1},
		Clock:            h.clock.Now,
	}
	for _, m := range mutate {
		m(&opts)
	}
	h.engine = NewEngine(h.remote, h.store, opts, logger.Nop())
	return h
}
