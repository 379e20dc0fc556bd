package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ItemStatus represents the delivery status of a single campaign item
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusSent      ItemStatus = "sent"
	ItemStatusFailed    ItemStatus = "failed"
	ItemStatusDelivered ItemStatus = "delivered"
	ItemStatusRead      ItemStatus = "read"
)

// String returns the string representation of the status
func (s ItemStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemStatusPending, ItemStatusSent, ItemStatusFailed,
		ItemStatusDelivered, ItemStatusRead:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for ItemStatus
func (s *ItemStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = ItemStatus(v)
	case []byte:
		*s = ItemStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ItemStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for ItemStatus
func (s ItemStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid ItemStatus: %s", s)
	}
	return string(s), nil
}

// rank orders statuses along pending -> {sent|failed} -> {delivered|read}
func (s ItemStatus) rank() int {
	switch s {
	case ItemStatusPending:
		return 0
	case ItemStatusSent, ItemStatusFailed:
		return 1
	case ItemStatusDelivered:
		return 2
	case ItemStatusRead:
		return 3
	default:
		return -1
	}
}

// IsForwardProgress reports whether moving to newStatus advances the item.
// Delivery callbacks never regress an item; delivered/read only apply after
// a successful send.
func (s ItemStatus) IsForwardProgress(newStatus ItemStatus) bool {
	if s == ItemStatusFailed {
		return false
	}
	if (newStatus == ItemStatusDelivered || newStatus == ItemStatusRead) && s == ItemStatusPending {
		return false
	}
	return newStatus.rank() > s.rank()
}

// ItemParams holds the per-recipient input columns used for rendering
type ItemParams map[string]string

// Value implements the driver.Valuer interface for ItemParams
func (p ItemParams) Value() (driver.Value, error) {
	if p == nil {
		return json.Marshal(ItemParams{})
	}
	return json.Marshal(p)
}

// Scan implements the sql.Scanner interface for ItemParams
func (p *ItemParams) Scan(value any) error {
	if value == nil {
		*p = ItemParams{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into ItemParams", value)
	}

	return json.Unmarshal(bytes, p)
}

// CampaignItem represents one recipient's unit of work within a campaign
type CampaignItem struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	CampaignID uint       `gorm:"not null;index:idx_campaign_items_campaign_id" json:"campaign_id"`
	Recipient  string     `gorm:"type:varchar(32);not null;index:idx_campaign_items_recipient" json:"recipient"`
	Params     ItemParams `gorm:"type:jsonb;not null;default:'{}'" json:"params"`
	Status     ItemStatus `gorm:"type:varchar(32);not null;default:'pending';index:idx_campaign_items_status" json:"status"`

	// Assigned by the provider after a successful send
	ProviderMessageID *string `gorm:"type:varchar(256);index:idx_campaign_items_provider_message_id" json:"provider_message_id,omitempty"`
	ErrorCode         *string `gorm:"type:varchar(64);index:idx_campaign_items_error_code" json:"error_code,omitempty"`
	ErrorMessage      *string `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount        int     `gorm:"not null;default:0" json:"retry_count"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_campaign_items_created_at" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Relations
	Campaign *Campaign `gorm:"foreignKey:CampaignID;references:ID" json:"campaign,omitempty"`
}

// TableName returns the table name for the model
func (CampaignItem) TableName() string {
	return "campaign_items"
}

// BeforeCreate is called before creating a new record
func (i *CampaignItem) BeforeCreate() error {
	if i.Status == "" {
		i.Status = ItemStatusPending
	}
	if i.Params == nil {
		i.Params = ItemParams{}
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now().UTC()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (i *CampaignItem) BeforeUpdate() error {
	now := time.Now().UTC()
	i.UpdatedAt = &now
	return nil
}

// CampaignItemFilter represents filter criteria for campaign items
type CampaignItemFilter struct {
	ID                *uint       `json:"id,omitempty"`
	CampaignID        *uint       `json:"campaign_id,omitempty"`
	Recipient         *string     `json:"recipient,omitempty"`
	Status            *ItemStatus `json:"status,omitempty"`
	ProviderMessageID *string     `json:"provider_message_id,omitempty"`
	ErrorCodes        []string    `json:"error_codes,omitempty"`
}
