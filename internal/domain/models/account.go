package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SocialAccount is a connected publishing target. Rows are owned by the
// account-connection flow; the engine only reads them.
type SocialAccount struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID            uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Platform          string    `gorm:"size:30;not null" json:"platform"`
	ExternalAccountID string    `gorm:"size:100;not null" json:"external_account_id"`
	Username          string    `gorm:"size:100" json:"username"`
	AccessToken       string    `gorm:"type:text;not null" json:"-"`
	ProxyURL          *string   `gorm:"size:255" json:"-"`
	IsActive          bool      `gorm:"default:true" json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (SocialAccount) TableName() string {
	return "social_accounts"
}

func (a *SocialAccount) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
