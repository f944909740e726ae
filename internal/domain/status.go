package domain

// SyncStatus tracks whether a local record matches its LMS counterpart.
type SyncStatus string

const (
	SyncSynced  SyncStatus = "synced"
	SyncPending SyncStatus = "pending"
	SyncError   SyncStatus = "error"
)

// Role is the normalized application role of a portal user.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Rank orders roles by privilege. Unknown roles rank below student.
func (r Role) Rank() int {
	switch r {
	case RoleStudent:
		return 1
	case RoleTeacher:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// Escalates reports whether moving from r to next is an upgrade. The sync
// engine only ever applies escalations; downgrades are administrative.
func (r Role) Escalates(next Role) bool {
	return next.Rank() > r.Rank()
}

type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserInactive UserStatus = "inactive"
)

type EnrollmentStatus string

const (
	EnrollmentEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentDropped   EnrollmentStatus = "dropped"
)

// CanTransitionTo enforces forward-only enrollment transitions:
// enrolled -> completed. Dropped is terminal.
func (s EnrollmentStatus) CanTransitionTo(next EnrollmentStatus) bool {
	if s == next {
		return true
	}
	return s == EnrollmentEnrolled && next == EnrollmentCompleted
}
