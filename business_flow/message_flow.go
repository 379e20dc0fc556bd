// Package businessflow contains the core business logic and use cases for campaign workflows
package businessflow

import (
	"context"
	"log"

	"github.com/waveline/waveline/app/dispatch"
	"github.com/waveline/waveline/app/dto"
	"github.com/waveline/waveline/app/services"
	"github.com/waveline/waveline/models"
	"github.com/waveline/waveline/repository"
	"github.com/waveline/waveline/utils"
)

// MessageFlow handles one-shot sends and contact eligibility management
type MessageFlow interface {
	SendSingle(ctx context.Context, req *dto.SendSingleRequest, metadata *ClientMetadata) (*dto.SendSingleResponse, error)
	OptIn(ctx context.Context, address string, metadata *ClientMetadata) (*dto.OptInResponse, error)
	ChannelQuality(ctx context.Context, channelID uint) (*dto.ChannelQualityResponse, error)
}

// MessageFlowImpl implements the message business flow
type MessageFlowImpl struct {
	channelRepo  repository.ChannelRepository
	templateRepo repository.TemplateRepository
	contactRepo  repository.ContactRepository
	messageRepo  repository.MessageRepository
	dispatcher   *dispatch.Dispatcher
	client       services.WhatsAppClient
	logger       *log.Logger
}

// NewMessageFlow creates a new message flow instance
func NewMessageFlow(
	channelRepo repository.ChannelRepository,
	templateRepo repository.TemplateRepository,
	contactRepo repository.ContactRepository,
	messageRepo repository.MessageRepository,
	dispatcher *dispatch.Dispatcher,
	client services.WhatsAppClient,
	logger *log.Logger,
) MessageFlow {
	if logger == nil {
		logger = log.Default()
	}
	return &MessageFlowImpl{
		channelRepo:  channelRepo,
		templateRepo: templateRepo,
		contactRepo:  contactRepo,
		messageRepo:  messageRepo,
		dispatcher:   dispatcher,
		client:       client,
		logger:       logger,
	}
}

// SendSingle runs the full dispatch pipeline for one recipient outside any
// campaign. The outcome, success or failure, is recorded on the audit log
// and returned; retry and backoff behave exactly as in a batch.
func (s *MessageFlowImpl) SendSingle(ctx context.Context, req *dto.SendSingleRequest, metadata *ClientMetadata) (*dto.SendSingleResponse, error) {
	channel, err := getChannel(ctx, s.channelRepo, req.ChannelID)
	if err != nil {
		return nil, NewBusinessError("CHANNEL_LOOKUP_FAILED", "Failed to lookup channel", err)
	}

	languageCode := req.LanguageCode
	if languageCode == "" {
		languageCode = "en"
	}
	tmpl, err := getTemplate(ctx, s.templateRepo, channel.ID, req.TemplateName, languageCode)
	if err != nil {
		return nil, NewBusinessError("TEMPLATE_LOOKUP_FAILED", "Failed to lookup template", err)
	}
	if !tmpl.IsActive {
		return nil, NewBusinessError("TEMPLATE_INACTIVE", "Template is deactivated", ErrTemplateInactive)
	}

	item := &models.CampaignItem{
		Recipient: req.Recipient,
		Params:    models.ItemParams(req.Params),
		Status:    models.ItemStatusPending,
	}
	outcome, err := s.dispatcher.Dispatch(ctx, item, tmpl, channel)
	if err != nil {
		return nil, NewBusinessError("SEND_ABANDONED", "Send was interrupted", err)
	}

	for _, cmd := range outcome.Commands {
		if cmd.Kind == dispatch.CommandDeactivateTemplate {
			if err := s.templateRepo.Deactivate(ctx, cmd.TemplateID); err != nil {
				s.logger.Printf("failed to deactivate template %d after single send: %v", cmd.TemplateID, err)
			}
		}
	}

	msg := &models.Message{
		ChannelID: channel.ID,
		Direction: models.MessageDirectionOutbound,
		Recipient: item.Recipient,
		Status:    outcome.Status,
	}
	if outcome.ProviderMessageID != "" {
		msg.ProviderMessageID = utils.ToPtr(outcome.ProviderMessageID)
	}
	if outcome.ErrorCode != "" {
		msg.ErrorCode = utils.ToPtr(outcome.ErrorCode)
		msg.ErrorMessage = utils.ToPtr(outcome.ErrorMessage)
	}
	if err := s.messageRepo.Save(ctx, msg); err != nil {
		s.logger.Printf("failed to record audit message for single send to %s: %v", item.Recipient, err)
	}

	return &dto.SendSingleResponse{
		Message:           "Send processed",
		Status:            string(outcome.Status),
		Recipient:         item.Recipient,
		ProviderMessageID: outcome.ProviderMessageID,
		ErrorCode:         outcome.ErrorCode,
		ErrorMessage:      outcome.ErrorMessage,
	}, nil
}

// OptIn clears a contact's opt-out by explicit operator action
func (s *MessageFlowImpl) OptIn(ctx context.Context, address string, metadata *ClientMetadata) (*dto.OptInResponse, error) {
	normalized, err := dispatch.NormalizeAddress(address)
	if err != nil {
		return nil, NewBusinessError("INVALID_ADDRESS", "Recipient address is not valid", err)
	}
	contact, err := s.contactRepo.ByAddress(ctx, normalized)
	if err != nil {
		return nil, NewBusinessError("CONTACT_LOOKUP_FAILED", "Failed to lookup contact", err)
	}
	if contact == nil {
		return nil, NewBusinessError("CONTACT_NOT_FOUND", "Contact not found", ErrContactNotFound)
	}
	if err := s.contactRepo.ClearOptOut(ctx, normalized); err != nil {
		return nil, NewBusinessError("OPT_IN_FAILED", "Failed to clear opt-out", err)
	}
	return &dto.OptInResponse{
		Message: "Contact opted back in",
		Address: normalized,
	}, nil
}

// ChannelQuality polls the provider for the channel's quality rating
func (s *MessageFlowImpl) ChannelQuality(ctx context.Context, channelID uint) (*dto.ChannelQualityResponse, error) {
	channel, err := getChannel(ctx, s.channelRepo, channelID)
	if err != nil {
		return nil, NewBusinessError("CHANNEL_LOOKUP_FAILED", "Failed to lookup channel", err)
	}
	rating, err := s.client.QualityRating(ctx, channel)
	if err != nil {
		return nil, NewBusinessError("QUALITY_POLL_FAILED", "Failed to poll quality rating", err)
	}
	return &dto.ChannelQualityResponse{
		ChannelID:     channel.ID,
		PhoneNumberID: channel.PhoneNumberID,
		QualityRating: rating,
	}, nil
}
