package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the portal-side user. Email is the cross-system join key when
// RemoteID is not yet known.
type User struct {
	ID            uuid.UUID  `gorm:"primaryKey;column:id" json:"id"`
	RemoteID      *int64     `gorm:"uniqueIndex;column:remote_id" json:"remote_id,omitempty"`
	Email         string     `gorm:"uniqueIndex;not null;column:email" json:"email"`
	FirstName     string     `gorm:"column:first_name" json:"first_name"`
	LastName      string     `gorm:"column:last_name" json:"last_name"`
	Role          Role       `gorm:"not null;default:student;column:role" json:"role"`
	Status        UserStatus `gorm:"not null;default:active;column:status" json:"status"`
	SyncStatus    SyncStatus `gorm:"not null;default:pending;index;column:sync_status" json:"sync_status"`
	LastSyncedAt  *time.Time `gorm:"column:last_synced_at" json:"last_synced_at,omitempty"`
	LastSyncError string     `gorm:"column:last_sync_error" json:"last_sync_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "portal_user"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
