package dto

// CampaignItemInput is one recipient row of a bulk upload
type CampaignItemInput struct {
	Recipient string            `json:"recipient" validate:"required,min=8,max=32"`
	Params    map[string]string `json:"params,omitempty"`
}

// CreateCampaignRequest represents a bulk campaign creation request
type CreateCampaignRequest struct {
	ChannelID      uint                `json:"channel_id" validate:"required"`
	TemplateName   string              `json:"template_name" validate:"required,min=1,max=512"`
	LanguageCode   string              `json:"language_code,omitempty" validate:"omitempty,min=2,max=16"`
	ProcessingRate int                 `json:"processing_rate,omitempty" validate:"omitempty,min=1,max=810"`
	Items          []CampaignItemInput `json:"items" validate:"required,min=1,dive"`
}

// CreateCampaignResponse represents the response after campaign creation
type CreateCampaignResponse struct {
	Message    string   `json:"message"`
	ID         uint     `json:"id"`
	UUID       string   `json:"uuid"`
	Status     string   `json:"status"`
	TotalItems int64    `json:"total_items"`
	Skipped    int      `json:"skipped,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

// ImportCampaignRequest accompanies a spreadsheet upload. The first sheet's
// header row names the parameter columns; the recipient column is detected
// by name.
type ImportCampaignRequest struct {
	ChannelID      uint   `json:"channel_id" form:"channel_id" validate:"required"`
	TemplateName   string `json:"template_name" form:"template_name" validate:"required,min=1,max=512"`
	LanguageCode   string `json:"language_code,omitempty" form:"language_code" validate:"omitempty,min=2,max=16"`
	ProcessingRate int    `json:"processing_rate,omitempty" form:"processing_rate" validate:"omitempty,min=1,max=810"`
}

// StartCampaignResponse represents the response after queuing a campaign
type StartCampaignResponse struct {
	Message string `json:"message"`
	UUID    string `json:"uuid"`
	Status  string `json:"status"`
}

// CampaignDTO is the read model of a campaign with its live counters
type CampaignDTO struct {
	ID             uint             `json:"id"`
	UUID           string           `json:"uuid"`
	ChannelID      uint             `json:"channel_id"`
	TemplateName   string           `json:"template_name"`
	LanguageCode   string           `json:"language_code"`
	Status         string           `json:"status"`
	TotalItems     int64            `json:"total_items"`
	Sent           int64            `json:"sent"`
	Failed         int64            `json:"failed"`
	Delivered      int64            `json:"delivered"`
	Read           int64            `json:"read"`
	Pending        int64            `json:"pending"`
	ProcessingRate int              `json:"processing_rate"`
	ErrorSummary   map[string]int64 `json:"error_summary"`
	CreatedAt      string           `json:"created_at"`
}

// GetCampaignResponse wraps the campaign read model
type GetCampaignResponse struct {
	Campaign CampaignDTO `json:"campaign"`
}

// ReprocessFailuresRequest targets failed items of a completed campaign
type ReprocessFailuresRequest struct {
	ErrorCodes  []string `json:"error_codes,omitempty" validate:"omitempty,dive,min=1,max=64"`
	NewTemplate *string  `json:"new_template,omitempty" validate:"omitempty,min=1,max=512"`
}

// ReprocessFailuresResponse reports how many items were reset
type ReprocessFailuresResponse struct {
	Message     string `json:"message"`
	UUID        string `json:"uuid"`
	Reprocessed int64  `json:"reprocessed"`
	Status      string `json:"status"`
}
