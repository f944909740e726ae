package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"portal-sync/internal/httpx"
	"portal-sync/internal/platform/logger"
)

const restPath = "/webservice/rest/server.php"

type Client struct {
	BaseURL      string
	Token        string
	HTTP         httpx.Doer
	Timeout      time.Duration // per call
	Retry        httpx.RetryConfig
	SiteCourseID int64

	log *logger.Logger
}

type Options struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	MaxAttempts  int
	SiteCourseID int64
	HTTP         httpx.Doer
}

func New(opts Options, log *logger.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.SiteCourseID == 0 {
		opts.SiteCourseID = 1
	}
	retry := httpx.DefaultRetryConfig()
	if opts.MaxAttempts > 0 {
		retry.MaxAttempts = opts.MaxAttempts
	}
	doer := opts.HTTP
	if doer == nil {
		doer = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	return &Client{
		BaseURL:      strings.TrimRight(opts.BaseURL, "/"),
		Token:        opts.Token,
		HTTP:         doer,
		Timeout:      opts.Timeout,
		Retry:        retry,
		SiteCourseID: opts.SiteCourseID,
		log:          log.With("client", "lms"),
	}
}

/* -------- API -------- */

// ListCourses returns every course except the site course.
func (c *Client) ListCourses(ctx context.Context) ([]Course, error) {
	var all []Course
	if err := c.call(ctx, getCoursesRequest{}, &all); err != nil {
		return nil, err
	}
	out := make([]Course, 0, len(all))
	for _, course := range all {
		if course.ID == c.SiteCourseID {
			continue
		}
		out = append(out, course)
	}
	return out, nil
}

func (c *Client) ListUsersByAuthMethod(ctx context.Context, auth string) ([]User, error) {
	var resp listUsersResponse
	req := getUsersRequest{Criteria: []criterion{{Key: "auth", Value: auth}}}
	if err := c.call(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// GetUserByEmail returns a KindNotFound error when no account has the email.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	req := getUsersByFieldRequest{Field: "email", Values: []string{strings.TrimSpace(email)}}
	var users []User
	if err := c.call(ctx, req, &users); err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, &Error{Op: req.function(), Kind: KindNotFound, Message: "no user with email"}
	}
	return &users[0], nil
}

func (c *Client) ListEnrolledUsers(ctx context.Context, courseID int64) ([]User, error) {
	var users []User
	if err := c.call(ctx, enrolledUsersRequest{CourseID: courseID}, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// GetCompletion returns a KindUnsupported error when the course has no
// completion tracking: either the LMS says so, or the payload lacks the
// completion fields. A user who simply has not completed gets
// Completion{Completed: false} and a nil error.
func (c *Client) GetCompletion(ctx context.Context, courseID, userID int64) (Completion, error) {
	req := completionStatusRequest{CourseID: courseID, UserID: userID}
	var resp completionResponse
	if err := c.call(ctx, req, &resp); err != nil {
		return Completion{}, err
	}
	if resp.CompletionStatus == nil || resp.CompletionStatus.Completed == nil {
		return Completion{}, &Error{Op: req.function(), Kind: KindUnsupported, Message: "completion status missing from response"}
	}

	out := Completion{Completed: *resp.CompletionStatus.Completed}
	if out.Completed {
		var latest int64
		for _, cc := range resp.CompletionStatus.Completions {
			if cc.TimeCompleted != nil && *cc.TimeCompleted > latest {
				latest = *cc.TimeCompleted
			}
		}
		if latest > 0 {
			t := time.Unix(latest, 0).UTC()
			out.CompletedAt = &t
		}
	}
	return out, nil
}

// CreateUser returns the new LMS user id.
func (c *Client) CreateUser(ctx context.Context, u NewUser) (int64, error) {
	if u.Auth == "" {
		u.Auth = "manual"
	}
	if u.Username == "" {
		u.Username = strings.ToLower(strings.TrimSpace(u.Email))
	}
	req := createUsersRequest{Users: []NewUser{u}}
	var created []createdUser
	if err := c.call(ctx, req, &created); err != nil {
		return 0, err
	}
	if len(created) == 0 || created[0].ID == 0 {
		return 0, &Error{Op: req.function(), Kind: KindRejected, Message: "no user id returned"}
	}
	return created[0].ID, nil
}

// GetOrCreateUser looks the user up by email and creates it when absent.
func (c *Client) GetOrCreateUser(ctx context.Context, u NewUser) (id int64, created bool, err error) {
	existing, err := c.GetUserByEmail(ctx, u.Email)
	if err == nil {
		return existing.ID, false, nil
	}
	if !IsNotFound(err) {
		return 0, false, err
	}
	id, err = c.CreateUser(ctx, u)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (c *Client) UpdateUser(ctx context.Context, u UserUpdate) error {
	return c.callWithWarnings(ctx, updateUsersRequest{Users: []UserUpdate{u}})
}

func (c *Client) EnrollUser(ctx context.Context, userID, courseID, roleID int64) error {
	req := enrolRequest{Enrolments: []enrolment{{RoleID: roleID, UserID: userID, CourseID: courseID}}}
	return c.callWithWarnings(ctx, req)
}

func (c *Client) UnenrollUser(ctx context.Context, userID, courseID int64) error {
	req := unenrolRequest{Enrolments: []enrolment{{UserID: userID, CourseID: courseID}}}
	return c.callWithWarnings(ctx, req)
}

/* -------- transport -------- */

// callWithWarnings is for write functions that answer null on success and
// may answer {"warnings": [...]} on partial failure.
func (c *Client) callWithWarnings(ctx context.Context, req request) error {
	var resp *warningsResponse
	if err := c.call(ctx, req, &resp); err != nil {
		return err
	}
	if resp != nil && len(resp.Warnings) > 0 {
		w := resp.Warnings[0]
		return &Error{Op: req.function(), Kind: classify(w.WarningCode), Code: w.WarningCode, Message: w.Message}
	}
	return nil
}

func (c *Client) call(ctx context.Context, req request, out any) error {
	op := req.function()
	if c.BaseURL == "" || c.Token == "" {
		return &Error{Op: op, Kind: KindUnavailable, Message: "client not configured (missing base url or token)"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	form := url.Values{}
	form.Set("wstoken", c.Token)
	form.Set("wsfunction", op)
	form.Set("moodlewsrestformat", "json")
	req.encode(form)

	start := time.Now()
	body, err := httpx.PostForm(ctx, c.HTTP, c.BaseURL+restPath, form, c.Retry)
	if err != nil {
		msg := "transport failure"
		if httpx.IsTimeout(err) {
			msg = fmt.Sprintf("timed out after %s", c.Timeout)
		}
		c.log.Debug("lms call failed", "op", op, "elapsed", time.Since(start), "error", err)
		return &Error{Op: op, Kind: KindUnavailable, Message: msg, Err: err}
	}

	if exc := decodeException(body); exc != nil {
		return &Error{Op: op, Kind: classify(exc.ErrorCode), Code: exc.ErrorCode, Message: exc.Message}
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{
			Op:      op,
			Kind:    KindUnavailable,
			Message: "decode response: " + httpx.Snippet(body, 200),
			Err:     err,
		}
	}
	return nil
}

func decodeException(body []byte) *exceptionResponse {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var exc exceptionResponse
	if err := json.Unmarshal(trimmed, &exc); err != nil {
		return nil
	}
	if exc.Exception == "" && exc.ErrorCode == "" {
		return nil
	}
	return &exc
}
