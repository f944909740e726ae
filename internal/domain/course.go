package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Course is the portal-side course. RemoteID links it to the LMS course id and
// is unique when set.
type Course struct {
	ID               uuid.UUID  `gorm:"primaryKey;column:id" json:"id"`
	RemoteID         *int64     `gorm:"uniqueIndex;column:remote_id" json:"remote_id,omitempty"`
	Title            string     `gorm:"not null;column:title" json:"title"`
	Description      string     `gorm:"column:description" json:"description"`
	ShortDescription string     `gorm:"column:short_description" json:"short_description"`
	Price            float64    `gorm:"not null;default:0;column:price" json:"price"`
	Currency         string     `gorm:"column:currency" json:"currency"`
	SyncStatus       SyncStatus `gorm:"not null;default:pending;index;column:sync_status" json:"sync_status"`
	LastSyncedAt     *time.Time `gorm:"column:last_synced_at" json:"last_synced_at,omitempty"`
	LastSyncError    string     `gorm:"column:last_sync_error" json:"last_sync_error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (Course) TableName() string {
	return "portal_course"
}

func (c *Course) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
