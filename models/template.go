package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PlaceholderType is the semantic type of a template placeholder
type PlaceholderType string

const (
	PlaceholderTypeText     PlaceholderType = "text"
	PlaceholderTypeCurrency PlaceholderType = "currency"
	PlaceholderTypeDateTime PlaceholderType = "date_time"
)

// Valid checks if the placeholder type is known
func (p PlaceholderType) Valid() bool {
	switch p {
	case PlaceholderTypeText, PlaceholderTypeCurrency, PlaceholderTypeDateTime:
		return true
	default:
		return false
	}
}

// ButtonSubType is the provider button kind
type ButtonSubType string

const (
	ButtonSubTypeURL        ButtonSubType = "url"
	ButtonSubTypeQuickReply ButtonSubType = "quick_reply"
)

// Placeholder describes one positional parameter of a template component
type Placeholder struct {
	Index int             `json:"index"`
	Type  PlaceholderType `json:"type"`
}

// ButtonSpec describes one button component of a template
type ButtonSpec struct {
	Index        int           `json:"index"`
	SubType      ButtonSubType `json:"sub_type"`
	Placeholders []Placeholder `json:"placeholders,omitempty"`
}

// TemplateStructure describes the placeholder layout the provider approved
type TemplateStructure struct {
	HeaderPlaceholders []Placeholder `json:"header_placeholders,omitempty"`
	BodyPlaceholders   []Placeholder `json:"body_placeholders,omitempty"`
	Buttons            []ButtonSpec  `json:"buttons,omitempty"`
}

// Value implements the driver.Valuer interface for TemplateStructure
func (s TemplateStructure) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for TemplateStructure
func (s *TemplateStructure) Scan(value any) error {
	if value == nil {
		*s = TemplateStructure{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into TemplateStructure", value)
	}

	return json.Unmarshal(bytes, s)
}

// MappingSource is where a placeholder value comes from
type MappingSource string

const (
	MappingSourceColumn MappingSource = "column"
	MappingSourceFixed  MappingSource = "fixed"
)

// Mapping binds one placeholder to an input column or a fixed literal.
// OmitIfEmpty only applies to button placeholders: an empty resolved value
// drops the whole button component instead of sending a blank.
type Mapping struct {
	Source      MappingSource `json:"source"`
	Value       string        `json:"value"`
	OmitIfEmpty bool          `json:"omit_if_empty,omitempty"`
}

// TemplateMappings keys mappings by component slot: "header_1", "body_2",
// "button_0_1" (button index, placeholder index).
type TemplateMappings map[string]Mapping

// Value implements the driver.Valuer interface for TemplateMappings
func (m TemplateMappings) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(TemplateMappings{})
	}
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for TemplateMappings
func (m *TemplateMappings) Scan(value any) error {
	if value == nil {
		*m = TemplateMappings{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into TemplateMappings", value)
	}

	return json.Unmarshal(bytes, m)
}

// Template represents a provider-approved message skeleton with typed placeholders
type Template struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	ChannelID    uint              `gorm:"not null;index:idx_templates_channel_id;uniqueIndex:uk_templates_channel_name_lang" json:"channel_id"`
	Name         string            `gorm:"type:varchar(512);not null;uniqueIndex:uk_templates_channel_name_lang" json:"name"`
	LanguageCode string            `gorm:"type:varchar(16);not null;default:'en';uniqueIndex:uk_templates_channel_name_lang" json:"language_code"`
	IsActive     bool              `gorm:"not null;default:true;index:idx_templates_is_active" json:"is_active"`
	Structure    TemplateStructure `gorm:"type:jsonb;not null;default:'{}'" json:"structure"`
	Mappings     TemplateMappings  `gorm:"type:jsonb;not null;default:'{}'" json:"mappings"`
	CreatedAt    time.Time         `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt    *time.Time        `json:"updated_at,omitempty"`

	// Relations
	Channel *Channel `gorm:"foreignKey:ChannelID;references:ID" json:"channel,omitempty"`
}

// TableName returns the table name for the model
func (Template) TableName() string {
	return "templates"
}

// BeforeUpdate is called before updating a record
func (t *Template) BeforeUpdate() error {
	now := time.Now().UTC()
	t.UpdatedAt = &now
	return nil
}

// SlotKey builds the mapping key for a component placeholder
func SlotKey(component string, button int, index int) string {
	if component == "button" {
		return fmt.Sprintf("button_%d_%d", button, index)
	}
	return fmt.Sprintf("%s_%d", component, index)
}

// MissingMappings lists placeholder slots declared in the structure that
// have no mapping entry. Absence is a caller-visible warning, not a hard
// error: those slots fall back to the default value at render time.
func (t *Template) MissingMappings() []string {
	var missing []string
	for _, ph := range t.Structure.HeaderPlaceholders {
		if _, ok := t.Mappings[SlotKey("header", 0, ph.Index)]; !ok {
			missing = append(missing, SlotKey("header", 0, ph.Index))
		}
	}
	for _, ph := range t.Structure.BodyPlaceholders {
		if _, ok := t.Mappings[SlotKey("body", 0, ph.Index)]; !ok {
			missing = append(missing, SlotKey("body", 0, ph.Index))
		}
	}
	for _, btn := range t.Structure.Buttons {
		for _, ph := range btn.Placeholders {
			if _, ok := t.Mappings[SlotKey("button", btn.Index, ph.Index)]; !ok {
				missing = append(missing, SlotKey("button", btn.Index, ph.Index))
			}
		}
	}
	return missing
}

// TemplateFilter represents filter criteria for templates
type TemplateFilter struct {
	ID           *uint   `json:"id,omitempty"`
	ChannelID    *uint   `json:"channel_id,omitempty"`
	Name         *string `json:"name,omitempty"`
	LanguageCode *string `json:"language_code,omitempty"`
	IsActive     *bool   `json:"is_active,omitempty"`
}
