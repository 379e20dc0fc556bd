// Package businessflow contains the core business logic and use cases for campaign workflows
package businessflow

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/waveline/waveline/app/dispatch"
	"github.com/waveline/waveline/app/dto"
	"github.com/waveline/waveline/models"
	"github.com/waveline/waveline/repository"
	"github.com/waveline/waveline/utils"
)

// optOutKeywords is the multilingual keyword set matched as a lowercase
// substring against inbound free text. Substring matching is deliberate and
// inherited behavior; words merely containing a keyword will false-positive.
var optOutKeywords = []string{
	"stop",
	"parar",
	"pare",
	"cancelar",
	"cancel",
	"unsubscribe",
	"sair",
	"baja",
	"descadastrar",
	"opt out",
	"optout",
}

// WebhookFlow consumes provider callbacks: delivery-status events feed the
// status reconciler, inbound messages feed the opt-out monitor.
type WebhookFlow interface {
	HandleEvents(ctx context.Context, payload *dto.WebhookPayload) (*dto.WebhookAck, error)
}

// WebhookFlowImpl implements the webhook business flow
type WebhookFlowImpl struct {
	campaignRepo repository.CampaignRepository
	itemRepo     repository.CampaignItemRepository
	messageRepo  repository.MessageRepository
	contactRepo  repository.ContactRepository
	channelRepo  repository.ChannelRepository
	aggregator   *dispatch.Aggregator
	logger       *log.Logger
}

// NewWebhookFlow creates a new webhook flow instance
func NewWebhookFlow(
	campaignRepo repository.CampaignRepository,
	itemRepo repository.CampaignItemRepository,
	messageRepo repository.MessageRepository,
	contactRepo repository.ContactRepository,
	channelRepo repository.ChannelRepository,
	aggregator *dispatch.Aggregator,
	logger *log.Logger,
) WebhookFlow {
	if logger == nil {
		logger = log.Default()
	}
	return &WebhookFlowImpl{
		campaignRepo: campaignRepo,
		itemRepo:     itemRepo,
		messageRepo:  messageRepo,
		contactRepo:  contactRepo,
		channelRepo:  channelRepo,
		aggregator:   aggregator,
		logger:       logger,
	}
}

// HandleEvents walks every event in the callback envelope. Individual event
// failures are logged and counted as ignored; the webhook request itself
// never fails because of one bad event, so the provider does not re-deliver
// the whole envelope forever.
func (s *WebhookFlowImpl) HandleEvents(ctx context.Context, payload *dto.WebhookPayload) (*dto.WebhookAck, error) {
	if payload == nil {
		return nil, NewBusinessError("WEBHOOK_PAYLOAD_INVALID", "Webhook payload is malformed", ErrWebhookPayloadInvalid)
	}

	ack := &dto.WebhookAck{}
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, status := range change.Value.Statuses {
				if err := s.reconcileStatus(ctx, status); err != nil {
					s.logger.Printf("status event %s ignored: %v", status.ID, err)
					ack.Ignored++
					continue
				}
				ack.Processed++
			}
			for _, inbound := range change.Value.Messages {
				if err := s.handleInbound(ctx, change.Value.Metadata, inbound); err != nil {
					s.logger.Printf("inbound message %s ignored: %v", inbound.ID, err)
					ack.Ignored++
					continue
				}
				ack.Processed++
			}
		}
	}
	return ack, nil
}

// reconcileStatus applies one delivery-status update to the message log and
// the owning campaign item. Updates are idempotent and forward-only: the
// item's current status is the guard, so a re-delivered event is a no-op and
// delivered/read never regress or double-count.
func (s *WebhookFlowImpl) reconcileStatus(ctx context.Context, event dto.StatusEvent) error {
	newStatus := models.ItemStatus(event.Status)
	if !newStatus.Valid() {
		return fmt.Errorf("unknown status %q", event.Status)
	}

	msg, err := s.messageRepo.ByProviderMessageID(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("message lookup failed: %w", err)
	}
	if msg != nil && msg.Status.IsForwardProgress(newStatus) {
		msg.Status = newStatus
		if len(event.Errors) > 0 {
			msg.ErrorCode = utils.ToPtr(fmt.Sprintf("%d", event.Errors[0].Code))
			msg.ErrorMessage = utils.ToPtr(event.Errors[0].Title)
		}
		if err := s.messageRepo.Update(ctx, msg); err != nil {
			return fmt.Errorf("message update failed: %w", err)
		}
	}

	item, err := s.itemRepo.ByProviderMessageID(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("item lookup failed: %w", err)
	}
	if item == nil {
		// Single sends have no campaign item; the message row is enough
		return nil
	}
	if !item.Status.IsForwardProgress(newStatus) {
		return nil
	}
	item.Status = newStatus
	if err := s.itemRepo.Update(ctx, item); err != nil {
		return fmt.Errorf("item update failed: %w", err)
	}

	// Propagate delivered/read counts by full recompute; safe against
	// batches still writing neighboring items
	campaign, err := s.campaignRepo.ByID(ctx, item.CampaignID)
	if err != nil {
		return fmt.Errorf("campaign lookup failed: %w", err)
	}
	if campaign != nil {
		if _, err := s.aggregator.Recompute(ctx, campaign); err != nil {
			return fmt.Errorf("campaign recompute failed: %w", err)
		}
	}
	return nil
}

// handleInbound records the inbound message and runs the opt-out monitor
// over its free text. A keyword match must win any race with a concurrent
// send, so the contact upsert happens before this function returns and its
// failure is the only error surfaced.
func (s *WebhookFlowImpl) handleInbound(ctx context.Context, metadata dto.WebhookMetadata, inbound dto.InboundMessage) error {
	address, err := dispatch.NormalizeAddress(inbound.From)
	if err != nil {
		return fmt.Errorf("sender address invalid: %w", err)
	}

	text := extractInboundText(inbound)

	var channelID uint
	if channel, err := s.channelRepo.ByPhoneNumberID(ctx, metadata.PhoneNumberID); err == nil && channel != nil {
		channelID = channel.ID
	}
	msg := &models.Message{
		ChannelID: channelID,
		Direction: models.MessageDirectionInbound,
		Recipient: address,
		Status:    models.ItemStatusDelivered,
	}
	if inbound.ID != "" {
		msg.ProviderMessageID = utils.ToPtr(inbound.ID)
	}
	if text != "" {
		msg.Body = utils.ToPtr(text)
	}
	if err := s.messageRepo.Save(ctx, msg); err != nil {
		// Audit loss is not worth losing the opt-out signal
		s.logger.Printf("failed to record inbound message from %s: %v", address, err)
	}

	matched, keyword := matchOptOutKeyword(text)
	if !matched {
		return nil
	}
	reason := fmt.Sprintf("inbound keyword %q in message: %s", keyword, text)
	if err := s.contactRepo.UpsertOptOut(ctx, address, reason, utils.UTCNow()); err != nil {
		return fmt.Errorf("opt-out upsert failed: %w", err)
	}
	s.logger.Printf("contact %s opted out via keyword %q", address, keyword)
	return nil
}

// extractInboundText picks the free text of an inbound message: body first,
// then button reply title, then interactive reply title.
func extractInboundText(inbound dto.InboundMessage) string {
	if inbound.Text != nil && inbound.Text.Body != "" {
		return inbound.Text.Body
	}
	if inbound.Button != nil && inbound.Button.Text != "" {
		return inbound.Button.Text
	}
	if inbound.Interactive != nil {
		if inbound.Interactive.ButtonReply != nil && inbound.Interactive.ButtonReply.Title != "" {
			return inbound.Interactive.ButtonReply.Title
		}
		if inbound.Interactive.ListReply != nil && inbound.Interactive.ListReply.Title != "" {
			return inbound.Interactive.ListReply.Title
		}
	}
	return ""
}

// matchOptOutKeyword reports whether the text contains any opt-out keyword,
// case-insensitively
func matchOptOutKeyword(text string) (bool, string) {
	if text == "" {
		return false, ""
	}
	lowered := strings.ToLower(text)
	for _, keyword := range optOutKeywords {
		if strings.Contains(lowered, keyword) {
			return true, keyword
		}
	}
	return false, ""
}
