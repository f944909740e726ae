package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal-sync/internal/domain"
	"portal-sync/internal/lms"
	"portal-sync/internal/store/storetest"
)

// seedScenario prepares an LMS with two courses and a handful of users plus
// locally-originated records that still need pushing.
func seedScenario(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()
	h.remote.courses = []lms.Course{
		{ID: 501, FullName: "Intro to Go", ShortName: "go101", Summary: "basics"},
		{ID: 502, FullName: "Concurrency", ShortName: "go201"},
	}
	h.remote.users = []lms.User{
		{ID: 42, Email: "ana@x.com", FirstName: "Ana", LastName: "Lee"},
		{ID: 43, Email: "bo@x.com", FirstName: "Bo", LastName: "Kim"},
	}
	h.remote.enrolled[501] = []lms.User{
		enrolledUser(42, "ana@x.com", "editingteacher"),
		enrolledUser(43, "bo@x.com", "student"),
	}
	h.remote.enrolled[502] = []lms.User{enrolledUser(43, "bo@x.com", "student")}
	done := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	h.remote.completions[pair{502, 43}] = lms.Completion{Completed: true, CompletedAt: &done}
	h.remote.completionErr[501] = &lms.Error{Op: "completion", Kind: lms.KindUnsupported}

	// A local user and a local enrollment into a course created in the
	// LMS beforehand.
	c := storetest.SeedCourse(t, ctx, h.store, domain.Int64Ptr(503), "Testing")
	h.remote.courses = append(h.remote.courses, lms.Course{ID: 503, FullName: "Testing"})
	u := storetest.SeedUser(t, ctx, h.store, nil, "local@x.com", domain.RoleStudent)
	storetest.SeedEnrollment(t, ctx, h.store, u, c, domain.EnrollmentEnrolled, domain.SyncPending)
}

func TestPeriodicSyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	seedScenario(t, h)

	first, err := h.engine.PeriodicSync(ctx)
	require.NoError(t, err)
	assert.True(t, first.Totals().Changed())
	assert.Zero(t, first.Totals().Errored)
	outEnr, ok := first.Report(EntityOutboundEnrollments)
	require.True(t, ok)
	assert.Equal(t, 1, outEnr.Created)

	statsBefore, err := h.store.Stats(ctx)
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	second, err := h.engine.PeriodicSync(ctx)
	require.NoError(t, err)
	totals := second.Totals()
	assert.Zero(t, totals.Created, "%v", second.Reports)
	assert.Zero(t, totals.Updated, "%v", second.Reports)
	assert.Zero(t, totals.Errored)
	assert.Positive(t, totals.Skipped)

	statsAfter, err := h.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, statsBefore, statsAfter)
}

func TestInitialSyncDoesNotPush(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	seedScenario(t, h)

	sum, err := h.engine.InitialSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, KindInitial, sum.Kind)
	require.Len(t, sum.Reports, 4)
	assert.Equal(t, []Entity{EntityCourses, EntityUsers, EntityEnrollments, EntityCompletions},
		[]Entity{sum.Reports[0].Entity, sum.Reports[1].Entity, sum.Reports[2].Entity, sum.Reports[3].Entity})
	assert.Zero(t, h.remote.count("GetOrCreateUser"))
	assert.Zero(t, h.remote.count("EnrollUser"))

	ana, err := h.store.FindUserByRemoteID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTeacher, ana.Role)

	comp, _ := sum.Report(EntityCompletions)
	assert.Equal(t, 1, comp.Updated)
	assert.Equal(t, 2, comp.Skipped)

	st := h.engine.State()
	assert.Equal(t, PhaseSucceeded, st.Status)
	assert.True(t, st.Ready())
}

func TestPassLevelFailureKeepsOtherPasses(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.remote.coursesErr = &lms.Error{Op: "core_course_get_courses", Kind: lms.KindUnavailable, Message: "down"}
	h.remote.users = []lms.User{{ID: 42, Email: "ana@x.com"}}

	sum, err := h.engine.PeriodicSync(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lms.ErrUnavailable))
	assert.Contains(t, err.Error(), "courses")

	users, ok := sum.Report(EntityUsers)
	require.True(t, ok)
	assert.Equal(t, 1, users.Created)
	assert.Len(t, sum.Reports, 6)

	st := h.engine.State()
	assert.Equal(t, PhaseFailed, st.Status)
	assert.NotEmpty(t, st.LastError)
	assert.False(t, st.Ready())
}

func TestPeriodicSuccessMakesEngineReadyAfterFailedInitial(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.remote.coursesErr = &lms.Error{Op: "core_course_get_courses", Kind: lms.KindUnavailable, Message: "down"}

	_, err := h.engine.InitialSync(ctx)
	require.Error(t, err)
	assert.False(t, h.engine.State().Ready())

	h.remote.coursesErr = nil
	h.clock.Advance(time.Minute)
	_, err = h.engine.PeriodicSync(ctx)
	require.NoError(t, err)

	st := h.engine.State()
	assert.Equal(t, PhaseSucceeded, st.Status)
	assert.True(t, st.Ready())
	assert.Contains(t, st.LastSuccess, KindPeriodic)
	assert.NotContains(t, st.LastSuccess, KindInitial)
}

func TestEntityFailuresDoNotFailThePass(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	storetest.SeedCourse(t, ctx, h.store, domain.Int64Ptr(501), "A")
	h.remote.enrolledErr[501] = rejected("hidden")

	sum, err := h.engine.PeriodicSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Totals().Errored)
	assert.Equal(t, PhaseSucceeded, h.engine.State().Status)
}

func TestCancelledPassStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := newHarness(t)

	sum, err := h.engine.PeriodicSync(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sum.Reports)
	assert.Zero(t, h.remote.count("ListCourses"))
}

func TestGetSyncStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	seedScenario(t, h)

	_, err := h.engine.InitialSync(ctx)
	require.NoError(t, err)

	status, err := h.engine.GetSyncStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), status.Entities.Courses.Total)
	assert.Equal(t, int64(3), status.Entities.Courses.Synced)
	assert.Equal(t, int64(3), status.Entities.Users.Total)
	assert.Equal(t, int64(1), status.Entities.Users.Pending)
	assert.Equal(t, int64(1), status.Entities.Enrollments.Pending)
	require.NotNil(t, status.Entities.Courses.LastSyncedAt)
	assert.Equal(t, PhaseSucceeded, status.State.Status)
	assert.Contains(t, status.State.LastSuccess, KindInitial)
	require.NotNil(t, status.State.LastSummary)
}

type recordingRecorder struct {
	mu      stdsync.Mutex
	reports []Report
	passes  []error
}

func (r *recordingRecorder) ObserveReport(_ Kind, rep Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
}

func (r *recordingRecorder) ObservePass(_ Summary, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passes = append(r.passes, err)
}

func TestEngineFeedsRecorder(t *testing.T) {
	rec := &recordingRecorder{}
	h := newHarness(t, func(o *Options) { o.Recorder = rec })

	_, err := h.engine.PeriodicSync(context.Background())
	require.NoError(t, err)
	assert.Len(t, rec.reports, 6)
	require.Len(t, rec.passes, 1)
	assert.NoError(t, rec.passes[0])
}

func TestEnginesDoNotShareState(t *testing.T) {
	a := newHarness(t)
	b := newHarness(t)
	b.remote.coursesErr = errors.New("boom")

	_, err := a.engine.InitialSync(context.Background())
	require.NoError(t, err)
	_, err = b.engine.InitialSync(context.Background())
	require.Error(t, err)

	assert.Equal(t, PhaseSucceeded, a.engine.State().Status)
	assert.Equal(t, PhaseFailed, b.engine.State().Status)
}

func TestSummaryTotalsCapErrorSamples(t *testing.T) {
	var r Report
	for i := 0; i < 30; i++ {
		r.fail("item %d", i)
	}
	assert.Equal(t, 30, r.Errored)
	assert.Len(t, r.Errors, maxErrorSamples)

	sum := Summary{Reports: []Report{r, r}}
	total := sum.Totals()
	assert.Equal(t, 60, total.Errored)
	assert.Len(t, total.Errors, maxErrorSamples)
}
