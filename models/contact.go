package models

import (
	"time"
)

// Contact identifies a recipient by its normalized address and carries the
// eligibility state the contact gate checks before any send.
type Contact struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Address string `gorm:"type:varchar(32);not null;uniqueIndex:uk_contacts_address" json:"address"`

	OptOut       bool       `gorm:"not null;default:false;index:idx_contacts_opt_out" json:"opt_out"`
	OptOutReason *string    `gorm:"type:text" json:"opt_out_reason,omitempty"`
	OptOutDate   *time.Time `json:"opt_out_date,omitempty"`

	// Updated by the dispatcher on every successful send; drives the
	// 24-hour session window check
	LastMessageSentAt *time.Time `gorm:"index:idx_contacts_last_message_sent_at" json:"last_message_sent_at,omitempty"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Contact) TableName() string {
	return "contacts"
}

// BeforeCreate is called before creating a new record
func (c *Contact) BeforeCreate() error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *Contact) BeforeUpdate() error {
	now := time.Now().UTC()
	c.UpdatedAt = &now
	return nil
}

// ContactFilter represents filter criteria for contacts
type ContactFilter struct {
	ID      *uint   `json:"id,omitempty"`
	Address *string `json:"address,omitempty"`
	OptOut  *bool   `json:"opt_out,omitempty"`
}
