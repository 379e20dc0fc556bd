package dto

// SendSingleRequest is a one-shot template send outside any campaign
type SendSingleRequest struct {
	ChannelID    uint              `json:"channel_id" validate:"required"`
	Recipient    string            `json:"recipient" validate:"required,min=8,max=32"`
	TemplateName string            `json:"template_name" validate:"required,min=1,max=512"`
	LanguageCode string            `json:"language_code,omitempty" validate:"omitempty,min=2,max=16"`
	Params       map[string]string `json:"params,omitempty"`
}

// SendSingleResponse reports the terminal outcome of a one-shot send
type SendSingleResponse struct {
	Message           string `json:"message"`
	Status            string `json:"status"`
	Recipient         string `json:"recipient"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	ErrorCode         string `json:"error_code,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`
}

// OptInResponse confirms an operator cleared a contact's opt-out
type OptInResponse struct {
	Message string `json:"message"`
	Address string `json:"address"`
}

// ChannelQualityResponse reports a channel's provider quality rating
type ChannelQualityResponse struct {
	ChannelID     uint   `json:"channel_id"`
	PhoneNumberID string `json:"phone_number_id"`
	QualityRating string `json:"quality_rating"`
}
