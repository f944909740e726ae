package httpx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exampleURL = "https://example.com"

// scripted returns one response or error per call, in order.
type scripted struct {
	mu        sync.Mutex
	responses []*http.Response
	errs      []error
	calls     int
}

func (s *scripted) Do(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls >= len(s.responses) {
		return nil, errors.New("no more responses")
	}
	resp, err := s.responses[s.calls], s.errs[s.calls]
	s.calls++
	return resp, err
}

func newResponse(status int, body string, headers map[string]string) *http.Response {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewBufferString(body)), Header: h}
}

func fastConfig(attempts int) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = attempts
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	return cfg
}

func getBuilder(ctx context.Context) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodGet, exampleURL, nil)
}

func TestDoWithRetrySuccess(t *testing.T) {
	d := &scripted{responses: []*http.Response{newResponse(200, `{"ok":true}`, nil)}, errs: []error{nil}}
	resp, body, err := DoWithRetry(context.Background(), d, getBuilder, fastConfig(3))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, `{"ok":true}`, string(body))
	assert.Equal(t, 1, d.calls)
}

func TestDoWithRetryRetriesTransientStatus(t *testing.T) {
	d := &scripted{
		responses: []*http.Response{
			newResponse(503, "busy", nil),
			newResponse(429, "slow down", map[string]string{"Retry-After": "0"}),
			newResponse(200, "ok", nil),
		},
		errs: []error{nil, nil, nil},
	}
	_, body, err := DoWithRetry(context.Background(), d, getBuilder, fastConfig(3))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, 3, d.calls)
}

func TestDoWithRetryGivesUpWithHTTPError(t *testing.T) {
	d := &scripted{
		responses: []*http.Response{newResponse(502, "bad", nil), newResponse(502, "bad", nil)},
		errs:      []error{nil, nil},
	}
	_, _, err := DoWithRetry(context.Background(), d, getBuilder, fastConfig(2))
	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, 502, herr.StatusCode)
	assert.Equal(t, 2, d.calls)
}

func TestDoWithRetryDoesNotRetryClientErrors(t *testing.T) {
	d := &scripted{responses: []*http.Response{newResponse(404, "missing", nil)}, errs: []error{nil}}
	_, _, err := DoWithRetry(context.Background(), d, getBuilder, fastConfig(5))
	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, 404, herr.StatusCode)
	assert.Equal(t, 1, d.calls)
}

func TestDoWithRetryRetriesConnectionReset(t *testing.T) {
	d := &scripted{
		responses: []*http.Response{nil, newResponse(200, "ok", nil)},
		errs:      []error{errors.New("read: connection reset by peer"), nil},
	}
	_, body, err := DoWithRetry(context.Background(), d, getBuilder, fastConfig(3))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestDoWithRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &scripted{responses: []*http.Response{nil}, errs: []error{context.Canceled}}
	_, _, err := DoWithRetry(ctx, d, getBuilder, fastConfig(3))
	require.Error(t, err)
	assert.Equal(t, 1, d.calls)
}

func TestPostFormAgainstServer(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(r.PostForm.Get("wsfunction")))
	}))
	defer srv.Close()

	body, err := PostForm(context.Background(), srv.Client(), srv.URL, url.Values{"wsfunction": {"core_course_get_courses"}}, fastConfig(2))
	require.NoError(t, err)
	assert.Equal(t, "core_course_get_courses", string(body))
	assert.Equal(t, int32(1), hits.Load())
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.False(t, IsTimeout(errors.New("boom")))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, ParseRetryAfter(newResponse(429, "", map[string]string{"Retry-After": "3"})))
	assert.Equal(t, time.Duration(0), ParseRetryAfter(newResponse(429, "", nil)))
	assert.Equal(t, time.Duration(0), ParseRetryAfter(newResponse(429, "", map[string]string{"Retry-After": "soon"})))
}

func TestRedactQuery(t *testing.T) {
	u, _ := url.Parse("https://lms.example.com/webservice/rest/server.php?wstoken=secret&wsfunction=x")
	out := redactQuery(u)
	assert.NotContains(t, out, "secret")
	assert.Contains(t, out, "wsfunction=x")
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "abc", Snippet([]byte("  abc "), 10))
	assert.Equal(t, "ab...", Snippet([]byte("abcdef"), 2))
}
