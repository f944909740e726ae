package lms

import (
	"net/url"
	"strconv"
)

// request is a typed web-service call. encode writes the function's own
// parameters; the client adds token and format.
type request interface {
	function() string
	encode(v url.Values)
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

func key(prefix string, i int, field string) string {
	return prefix + "[" + strconv.Itoa(i) + "][" + field + "]"
}

type getCoursesRequest struct{}

func (getCoursesRequest) function() string { return "core_course_get_courses" }
func (getCoursesRequest) encode(url.Values) {}

type criterion struct {
	Key   string
	Value string
}

type getUsersRequest struct {
	Criteria []criterion
}

func (getUsersRequest) function() string { return "core_user_get_users" }
func (r getUsersRequest) encode(v url.Values) {
	for i, c := range r.Criteria {
		v.Set(key("criteria", i, "key"), c.Key)
		v.Set(key("criteria", i, "value"), c.Value)
	}
}

type getUsersByFieldRequest struct {
	Field  string
	Values []string
}

func (getUsersByFieldRequest) function() string { return "core_user_get_users_by_field" }
func (r getUsersByFieldRequest) encode(v url.Values) {
	v.Set("field", r.Field)
	for i, val := range r.Values {
		v.Set("values["+strconv.Itoa(i)+"]", val)
	}
}

type enrolledUsersRequest struct {
	CourseID int64
}

func (enrolledUsersRequest) function() string { return "core_enrol_get_enrolled_users" }
func (r enrolledUsersRequest) encode(v url.Values) {
	v.Set("courseid", itoa(r.CourseID))
}

type completionStatusRequest struct {
	CourseID int64
	UserID   int64
}

func (completionStatusRequest) function() string {
	return "core_completion_get_course_completion_status"
}
func (r completionStatusRequest) encode(v url.Values) {
	v.Set("courseid", itoa(r.CourseID))
	v.Set("userid", itoa(r.UserID))
}

// NewUser is the payload for CreateUser. An empty Password asks the LMS to
// generate one and mail it to the user.
type NewUser struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Auth      string
	Password  string
}

type createUsersRequest struct {
	Users []NewUser
}

func (createUsersRequest) function() string { return "core_user_create_users" }
func (r createUsersRequest) encode(v url.Values) {
	for i, u := range r.Users {
		v.Set(key("users", i, "username"), u.Username)
		v.Set(key("users", i, "email"), u.Email)
		v.Set(key("users", i, "firstname"), u.FirstName)
		v.Set(key("users", i, "lastname"), u.LastName)
		v.Set(key("users", i, "auth"), u.Auth)
		if u.Password != "" {
			v.Set(key("users", i, "password"), u.Password)
		} else {
			v.Set(key("users", i, "createpassword"), "1")
		}
	}
}

// UserUpdate changes profile fields of an existing LMS user. Empty fields are
// left untouched.
type UserUpdate struct {
	ID        int64
	Email     string
	FirstName string
	LastName  string
}

type updateUsersRequest struct {
	Users []UserUpdate
}

func (updateUsersRequest) function() string { return "core_user_update_users" }
func (r updateUsersRequest) encode(v url.Values) {
	for i, u := range r.Users {
		v.Set(key("users", i, "id"), itoa(u.ID))
		if u.Email != "" {
			v.Set(key("users", i, "email"), u.Email)
		}
		if u.FirstName != "" {
			v.Set(key("users", i, "firstname"), u.FirstName)
		}
		if u.LastName != "" {
			v.Set(key("users", i, "lastname"), u.LastName)
		}
	}
}

type enrolment struct {
	RoleID   int64
	UserID   int64
	CourseID int64
}

type enrolRequest struct {
	Enrolments []enrolment
}

func (enrolRequest) function() string { return "enrol_manual_enrol_users" }
func (r enrolRequest) encode(v url.Values) {
	for i, e := range r.Enrolments {
		v.Set(key("enrolments", i, "roleid"), itoa(e.RoleID))
		v.Set(key("enrolments", i, "userid"), itoa(e.UserID))
		v.Set(key("enrolments", i, "courseid"), itoa(e.CourseID))
	}
}

type unenrolRequest struct {
	Enrolments []enrolment
}

func (unenrolRequest) function() string { return "enrol_manual_unenrol_users" }
func (r unenrolRequest) encode(v url.Values) {
	for i, e := range r.Enrolments {
		v.Set(key("enrolments", i, "userid"), itoa(e.UserID))
		v.Set(key("enrolments", i, "courseid"), itoa(e.CourseID))
	}
}
