package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Content is a pre-authored post: caption plus media object keys.
type Content struct {
	ID        uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID   `gorm:"type:uuid;index;not null" json:"user_id"`
	Caption   string      `gorm:"type:text" json:"caption"`
	MediaType string      `gorm:"size:20;default:text" json:"media_type"`
	MediaKeys StringArray `gorm:"type:text[]" json:"media_keys,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (Content) TableName() string {
	return "contents"
}

func (c *Content) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
