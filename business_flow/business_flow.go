// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"
	"time"

	"github.com/waveline/waveline/app/dto"
	"github.com/waveline/waveline/models"
	"github.com/waveline/waveline/repository"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds caller-related information for audit logging
type ClientMetadata struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// DispatchEnqueuer queues a campaign for batch processing. Implemented by
// the dispatch scheduler; kept as an interface so flows stay testable.
type DispatchEnqueuer interface {
	Enqueue(ctx context.Context, campaignID uint) error
}

// ToCampaignDTO converts a campaign model plus recomputed item counts to the
// read model
func ToCampaignDTO(campaign *models.Campaign, counts *repository.StatusCounts) dto.CampaignDTO {
	d := dto.CampaignDTO{
		ID:             campaign.ID,
		UUID:           campaign.UUID.String(),
		ChannelID:      campaign.ChannelID,
		TemplateName:   campaign.TemplateName,
		LanguageCode:   campaign.LanguageCode,
		Status:         string(campaign.Status),
		TotalItems:     campaign.TotalItems,
		Sent:           campaign.Sent,
		Failed:         campaign.Failed,
		Delivered:      campaign.Delivered,
		Read:           campaign.Read,
		ProcessingRate: campaign.ProcessingRate,
		ErrorSummary:   campaign.ErrorSummary,
		CreatedAt:      campaign.CreatedAt.Format(time.RFC3339),
	}
	if counts != nil {
		d.Pending = counts.Pending
	}
	return d
}

// getChannel loads an active channel or fails with the matching sentinel
func getChannel(ctx context.Context, channels repository.ChannelRepository, channelID uint) (*models.Channel, error) {
	channel, err := channels.ByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel == nil {
		return nil, ErrChannelNotFound
	}
	if !channel.IsActive {
		return nil, ErrChannelInactive
	}
	return channel, nil
}

// getTemplate loads a template by channel, name and language
func getTemplate(ctx context.Context, templates repository.TemplateRepository, channelID uint, name, languageCode string) (*models.Template, error) {
	if name == "" {
		return nil, ErrTemplateNameRequired
	}
	tmpl, err := templates.ByChannelAndName(ctx, channelID, name, languageCode)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, ErrTemplateNotFound
	}
	return tmpl, nil
}
