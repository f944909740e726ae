package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Enrollment is unique per (UserID, CourseID).
type Enrollment struct {
	ID            uuid.UUID        `gorm:"primaryKey;column:id" json:"id"`
	UserID        uuid.UUID        `gorm:"not null;uniqueIndex:idx_enrollment_user_course;column:user_id" json:"user_id"`
	CourseID      uuid.UUID        `gorm:"not null;uniqueIndex:idx_enrollment_user_course;column:course_id" json:"course_id"`
	Status        EnrollmentStatus `gorm:"not null;default:enrolled;index;column:status" json:"status"`
	Progress      float64          `gorm:"not null;default:0;column:progress" json:"progress"`
	EnrolledAt    time.Time        `gorm:"not null;column:enrolled_at" json:"enrolled_at"`
	CompletedAt   *time.Time       `gorm:"column:completed_at" json:"completed_at,omitempty"`
	SyncStatus    SyncStatus       `gorm:"not null;default:pending;index;column:sync_status" json:"sync_status"`
	LastSyncedAt  *time.Time       `gorm:"column:last_synced_at" json:"last_synced_at,omitempty"`
	LastSyncError string           `gorm:"column:last_sync_error" json:"last_sync_error,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func (Enrollment) TableName() string {
	return "portal_enrollment"
}

func (e *Enrollment) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Models lists every table owned by the portal schema, in migration order.
func Models() []interface{} {
	return []interface{}{&Course{}, &User{}, &Enrollment{}}
}

// Int64Ptr is a convenience for optional remote ids.
func Int64Ptr(v int64) *int64 { return &v }

// TimePtr is a convenience for optional timestamps.
func TimePtr(v time.Time) *time.Time { return &v }
