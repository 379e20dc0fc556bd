package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// MessageDirection distinguishes inbound and outbound audit rows
type MessageDirection string

const (
	MessageDirectionInbound  MessageDirection = "inbound"
	MessageDirectionOutbound MessageDirection = "outbound"
)

// Valid checks if the direction is valid
func (d MessageDirection) Valid() bool {
	return d == MessageDirectionInbound || d == MessageDirectionOutbound
}

// Scan implements the sql.Scanner interface for MessageDirection
func (d *MessageDirection) Scan(value any) error {
	if value == nil {
		*d = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*d = MessageDirection(v)
	case []byte:
		*d = MessageDirection(string(v))
	default:
		return fmt.Errorf("cannot scan %T into MessageDirection", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for MessageDirection
func (d MessageDirection) Value() (driver.Value, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid MessageDirection: %s", d)
	}
	return string(d), nil
}

// Message is the append-only audit log of individual sends and receives,
// independent of campaign membership. Status updates are keyed by the
// provider message id.
type Message struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	ChannelID uint             `gorm:"not null;index:idx_messages_channel_id" json:"channel_id"`
	Direction MessageDirection `gorm:"type:varchar(16);not null;index:idx_messages_direction" json:"direction"`
	Recipient string           `gorm:"type:varchar(32);not null;index:idx_messages_recipient" json:"recipient"`

	ProviderMessageID *string    `gorm:"type:varchar(256);index:idx_messages_provider_message_id" json:"provider_message_id,omitempty"`
	Status            ItemStatus `gorm:"type:varchar(32);not null;default:'pending'" json:"status"`
	ErrorCode         *string    `gorm:"type:varchar(64)" json:"error_code,omitempty"`
	ErrorMessage      *string    `gorm:"type:text" json:"error_message,omitempty"`

	// Inbound messages carry the received free text
	Body *string `gorm:"type:text" json:"body,omitempty"`

	CampaignItemID *uint `gorm:"index:idx_messages_campaign_item_id" json:"campaign_item_id,omitempty"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_messages_created_at" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Message) TableName() string {
	return "messages"
}

// BeforeCreate is called before creating a new record
func (m *Message) BeforeCreate() error {
	if m.Status == "" {
		m.Status = ItemStatusPending
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (m *Message) BeforeUpdate() error {
	now := time.Now().UTC()
	m.UpdatedAt = &now
	return nil
}

// MessageFilter represents filter criteria for messages
type MessageFilter struct {
	ID                *uint             `json:"id,omitempty"`
	ChannelID         *uint             `json:"channel_id,omitempty"`
	Direction         *MessageDirection `json:"direction,omitempty"`
	Recipient         *string           `json:"recipient,omitempty"`
	ProviderMessageID *string           `json:"provider_message_id,omitempty"`
	Status            *ItemStatus       `json:"status,omitempty"`
}
