package lms

import "time"

/* -------- Response -------- */

type Course struct {
	ID         int64  `json:"id"`
	FullName   string `json:"fullname"`
	ShortName  string `json:"shortname"`
	Summary    string `json:"summary"`
	CategoryID int64  `json:"categoryid"`
	Visible    int    `json:"visible"`
}

// RoleAssignment is a role held by a user in the course context the listing
// was made in.
type RoleAssignment struct {
	RoleID    int64  `json:"roleid"`
	Name      string `json:"name"`
	ShortName string `json:"shortname"`
}

// User is an LMS account. Roles is only populated when the user came from an
// enrolled-users listing.
type User struct {
	ID        int64            `json:"id"`
	Username  string           `json:"username"`
	Email     string           `json:"email"`
	FirstName string           `json:"firstname"`
	LastName  string           `json:"lastname"`
	Auth      string           `json:"auth"`
	Suspended bool             `json:"suspended"`
	Roles     []RoleAssignment `json:"roles,omitempty"`
}

// Completion is the course completion state of one user.
type Completion struct {
	Completed   bool
	CompletedAt *time.Time
}

type listUsersResponse struct {
	Users    []User    `json:"users"`
	Warnings []warning `json:"warnings"`
}

type completionResponse struct {
	CompletionStatus *struct {
		Completed   *bool `json:"completed"`
		Aggregation int   `json:"aggregation"`
		Completions []struct {
			Type          int    `json:"type"`
			Title         string `json:"title"`
			Complete      bool   `json:"complete"`
			TimeCompleted *int64 `json:"timecompleted"`
		} `json:"completions"`
	} `json:"completionstatus"`
	Warnings []warning `json:"warnings"`
}

type createdUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type warning struct {
	Item        string `json:"item"`
	ItemID      int64  `json:"itemid"`
	WarningCode string `json:"warningcode"`
	Message     string `json:"message"`
}

type warningsResponse struct {
	Warnings []warning `json:"warnings"`
}

type exceptionResponse struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
	DebugInfo string `json:"debuginfo"`
}
