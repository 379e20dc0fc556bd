package models

import (
	"time"
)

// Channel is a messaging-provider account: the credentials and numeric
// identifier used to send and receive on behalf of one sender. Shared
// read-only across all campaigns that use it.
type Channel struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	Name          string `gorm:"type:varchar(256);not null" json:"name"`
	PhoneNumberID string `gorm:"type:varchar(64);not null;uniqueIndex:uk_channels_phone_number_id" json:"phone_number_id"`
	BusinessID    string `gorm:"type:varchar(64);not null" json:"business_id"`
	DisplayNumber string `gorm:"type:varchar(32);not null" json:"display_number"`
	AccessToken   string `gorm:"type:text;not null" json:"-"`

	// Provider-wide messages/second ceiling for this account
	MaxRate  int  `gorm:"not null;default:80" json:"max_rate"`
	IsActive bool `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Channel) TableName() string {
	return "channels"
}

// BeforeUpdate is called before updating a record
func (c *Channel) BeforeUpdate() error {
	now := time.Now().UTC()
	c.UpdatedAt = &now
	return nil
}

// ChannelFilter represents filter criteria for channels
type ChannelFilter struct {
	ID            *uint   `json:"id,omitempty"`
	PhoneNumberID *string `json:"phone_number_id,omitempty"`
	IsActive      *bool   `json:"is_active,omitempty"`
}
