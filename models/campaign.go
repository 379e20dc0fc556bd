package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CampaignStatus represents the lifecycle status of a campaign
type CampaignStatus string

const (
	CampaignStatusPending    CampaignStatus = "pending"
	CampaignStatusProcessing CampaignStatus = "processing"
	CampaignStatusCompleted  CampaignStatus = "completed"
	CampaignStatusFailed     CampaignStatus = "failed"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusPending, CampaignStatusProcessing,
		CampaignStatusCompleted, CampaignStatusFailed:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// ErrorSummary maps provider error codes to occurrence counts
type ErrorSummary map[string]int64

// Value implements the driver.Valuer interface for ErrorSummary
func (e ErrorSummary) Value() (driver.Value, error) {
	if e == nil {
		return json.Marshal(ErrorSummary{})
	}
	return json.Marshal(e)
}

// Scan implements the sql.Scanner interface for ErrorSummary
func (e *ErrorSummary) Scan(value any) error {
	if value == nil {
		*e = ErrorSummary{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into ErrorSummary", value)
	}

	return json.Unmarshal(bytes, e)
}

// Merge folds another summary into this one
func (e ErrorSummary) Merge(other ErrorSummary) {
	for code, count := range other {
		e[code] += count
	}
}

// Campaign represents a bulk template-send job targeting many recipients
type Campaign struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	UUID         uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	ChannelID    uint           `gorm:"not null;index:idx_campaigns_channel_id" json:"channel_id"`
	TemplateName string         `gorm:"type:varchar(512);not null" json:"template_name"`
	LanguageCode string         `gorm:"type:varchar(16);not null;default:'en'" json:"language_code"`
	Status       CampaignStatus `gorm:"type:varchar(32);not null;default:'pending';index:idx_campaigns_status" json:"status"`

	TotalItems int64 `gorm:"not null;default:0" json:"total_items"`
	Sent       int64 `gorm:"not null;default:0" json:"sent"`
	Failed     int64 `gorm:"not null;default:0" json:"failed"`
	Delivered  int64 `gorm:"not null;default:0" json:"delivered"`
	Read       int64 `gorm:"not null;default:0" json:"read"`

	// Messages per second; clamped to the channel/provider ceiling
	ProcessingRate int          `gorm:"not null;default:10" json:"processing_rate"`
	ErrorSummary   ErrorSummary `gorm:"type:jsonb;not null;default:'{}'" json:"error_summary"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_campaigns_created_at" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Relations
	Channel *Channel `gorm:"foreignKey:ChannelID;references:ID" json:"channel,omitempty"`
}

// TableName returns the table name for the model
func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate is called before creating a new record
func (c *Campaign) BeforeCreate() error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CampaignStatusPending
	}
	if c.ErrorSummary == nil {
		c.ErrorSummary = ErrorSummary{}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *Campaign) BeforeUpdate() error {
	now := time.Now().UTC()
	c.UpdatedAt = &now
	return nil
}

// CanTransitionTo checks if the campaign can transition to the given status.
// The failure reprocessor is the only path back from completed to pending.
func (c *Campaign) CanTransitionTo(newStatus CampaignStatus) bool {
	switch c.Status {
	case CampaignStatusPending:
		return newStatus == CampaignStatusProcessing || newStatus == CampaignStatusFailed
	case CampaignStatusProcessing:
		return newStatus == CampaignStatusCompleted || newStatus == CampaignStatusFailed
	case CampaignStatusCompleted:
		return newStatus == CampaignStatusPending
	default:
		return false
	}
}

// IsTerminal reports whether the campaign needs no further dispatching
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignStatusCompleted || c.Status == CampaignStatusFailed
}

// CampaignFilter represents filter criteria for campaigns
type CampaignFilter struct {
	ID            *uint           `json:"id,omitempty"`
	UUID          *uuid.UUID      `json:"uuid,omitempty"`
	ChannelID     *uint           `json:"channel_id,omitempty"`
	Status        *CampaignStatus `json:"status,omitempty"`
	TemplateName  *string         `json:"template_name,omitempty"`
	CreatedAfter  *time.Time      `json:"created_after,omitempty"`
	CreatedBefore *time.Time      `json:"created_before,omitempty"`
}
