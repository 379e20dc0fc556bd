package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/waveline/waveline/models"
	"github.com/waveline/waveline/repository"
	"github.com/waveline/waveline/utils"
)

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrChannelNotFound  = errors.New("campaign channel not found")
	ErrTemplateNotFound = errors.New("campaign template not found")
)

// Result summarizes one batch runner invocation.
type Result struct {
	Processed int
	Sent      int
	Failed    int
	Remaining int64
	// Done means the campaign needs no further batches: either it drained to
	// completed or an operator moved it out of processing.
	Done bool
}

// BatchRunner pulls pending items in bounded batches and drives the
// gate -> render -> dispatch pipeline per item under the rate governor.
// All cross-batch state lives in the database; one invocation processes at
// most one batch so a crash leaves every undispatched item pending.
type BatchRunner struct {
	campaigns repository.CampaignRepository
	items     repository.CampaignItemRepository
	templates repository.TemplateRepository
	channels  repository.ChannelRepository
	messages  repository.MessageRepository

	dispatcher *Dispatcher
	aggregator *Aggregator
	limiters   *ChannelLimiters

	batchSize int
	logger    *log.Logger
}

func NewBatchRunner(
	campaigns repository.CampaignRepository,
	items repository.CampaignItemRepository,
	templates repository.TemplateRepository,
	channels repository.ChannelRepository,
	messages repository.MessageRepository,
	dispatcher *Dispatcher,
	aggregator *Aggregator,
	limiters *ChannelLimiters,
	batchSize int,
	logger *log.Logger,
) *BatchRunner {
	if batchSize <= 0 {
		batchSize = utils.BatchSize
	}
	if logger == nil {
		logger = log.Default()
	}
	return &BatchRunner{
		campaigns:  campaigns,
		items:      items,
		templates:  templates,
		channels:   channels,
		messages:   messages,
		dispatcher: dispatcher,
		aggregator: aggregator,
		limiters:   limiters,
		batchSize:  batchSize,
		logger:     logger,
	}
}

// RunBatch processes one batch of pending items for the campaign. Campaign
// fetch failures abort the invocation without touching item state; per-item
// failures are recorded on the item and never stop the batch.
func (r *BatchRunner) RunBatch(ctx context.Context, campaignID uint) (*Result, error) {
	campaign, err := r.campaigns.ByID(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign %d: %w", campaignID, err)
	}
	if campaign == nil {
		return nil, ErrCampaignNotFound
	}

	if campaign.Status == models.CampaignStatusPending {
		if err := r.campaigns.UpdateStatus(ctx, campaign.ID, models.CampaignStatusProcessing); err != nil {
			return nil, fmt.Errorf("failed to mark campaign %d processing: %w", campaign.ID, err)
		}
		campaign.Status = models.CampaignStatusProcessing
	}
	// An operator pausing a campaign flips it out of processing; respect
	// that before claiming a batch.
	if campaign.Status != models.CampaignStatusProcessing {
		r.logger.Printf("campaign %d is %s, nothing to run", campaign.ID, campaign.Status)
		return &Result{Done: true}, nil
	}

	channel, err := r.channels.ByID(ctx, campaign.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load channel %d: %w", campaign.ChannelID, err)
	}
	if channel == nil {
		return nil, ErrChannelNotFound
	}

	tmpl, err := r.templates.ByChannelAndName(ctx, channel.ID, campaign.TemplateName, campaign.LanguageCode)
	if err != nil {
		return nil, fmt.Errorf("failed to load template %q: %w", campaign.TemplateName, err)
	}
	if tmpl == nil {
		return nil, ErrTemplateNotFound
	}

	batch, err := r.items.ListPending(ctx, campaign.ID, r.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending items for campaign %d: %w", campaign.ID, err)
	}
	if len(batch) == 0 {
		return r.finalize(ctx, campaign)
	}

	rate := campaign.ProcessingRate
	if channel.MaxRate > 0 && rate > channel.MaxRate {
		rate = channel.MaxRate
	}
	pacer := NewPacer(rate, r.limiters.For(channel.ID))

	result := &Result{}
	for _, item := range batch {
		if err := pacer.Wait(ctx); err != nil {
			// Cancellation mid-batch: undispatched items stay pending
			r.logger.Printf("campaign %d batch interrupted after %d items: %v", campaign.ID, result.Processed, err)
			break
		}

		outcome := r.dispatchOne(ctx, item, tmpl, channel)
		if outcome == nil {
			break
		}

		result.Processed++
		if outcome.Status == models.ItemStatusSent {
			result.Sent++
		} else {
			result.Failed++
		}

		for _, cmd := range outcome.Commands {
			r.applyCommand(ctx, campaign, tmpl, cmd)
		}
	}

	counts, err := r.aggregator.Recompute(ctx, campaign)
	if err != nil {
		return result, err
	}
	result.Remaining = counts.Pending

	r.logger.Printf("campaign %d batch done: processed=%d sent=%d failed=%d remaining=%d",
		campaign.ID, result.Processed, result.Sent, result.Failed, result.Remaining)

	if result.Remaining == 0 {
		if _, err := r.finalize(ctx, campaign); err != nil {
			return result, err
		}
		result.Done = true
		batchesTotal.WithLabelValues("drained").Inc()
	} else {
		batchesTotal.WithLabelValues("continued").Inc()
	}
	return result, nil
}

// dispatchOne runs the pipeline for a single item and persists its outcome.
// Returns nil when the attempt was abandoned by cancellation.
func (r *BatchRunner) dispatchOne(ctx context.Context, item *models.CampaignItem, tmpl *models.Template, channel *models.Channel) *Outcome {
	start := time.Now()

	var outcome *Outcome
	if !tmpl.IsActive {
		// A pause command earlier in the batch deactivated the template;
		// fail fast instead of re-incurring the provider error per item.
		outcome = failedOutcome(CodeTemplateInactive, "template is deactivated", 0)
	} else {
		var err error
		outcome, err = r.dispatcher.Dispatch(ctx, item, tmpl, channel)
		if err != nil {
			return nil
		}
	}
	itemDuration.Observe(time.Since(start).Seconds())
	observeOutcome(outcome)

	r.persistOutcome(ctx, item, channel, outcome)
	return outcome
}

func (r *BatchRunner) persistOutcome(ctx context.Context, item *models.CampaignItem, channel *models.Channel, outcome *Outcome) {
	item.Status = outcome.Status
	if outcome.ProviderMessageID != "" {
		item.ProviderMessageID = utils.ToPtr(outcome.ProviderMessageID)
	}
	if outcome.ErrorCode != "" {
		item.ErrorCode = utils.ToPtr(outcome.ErrorCode)
		item.ErrorMessage = utils.ToPtr(outcome.ErrorMessage)
	}
	if outcome.Attempts > 0 {
		item.RetryCount = outcome.Attempts - 1
	}
	if err := r.items.Update(ctx, item); err != nil {
		r.logger.Printf("failed to persist item %d outcome: %v", item.ID, err)
		return
	}

	msg := &models.Message{
		ChannelID:         channel.ID,
		Direction:         models.MessageDirectionOutbound,
		Recipient:         item.Recipient,
		ProviderMessageID: item.ProviderMessageID,
		Status:            outcome.Status,
		ErrorCode:         item.ErrorCode,
		ErrorMessage:      item.ErrorMessage,
		CampaignItemID:    utils.ToPtr(item.ID),
	}
	if err := r.messages.Save(ctx, msg); err != nil {
		r.logger.Printf("failed to record audit message for item %d: %v", item.ID, err)
	}
}

func (r *BatchRunner) applyCommand(ctx context.Context, campaign *models.Campaign, tmpl *models.Template, cmd Command) {
	switch cmd.Kind {
	case CommandDeactivateTemplate:
		if err := r.templates.Deactivate(ctx, cmd.TemplateID); err != nil {
			r.logger.Printf("failed to deactivate template %d: %v", cmd.TemplateID, err)
			return
		}
		tmpl.IsActive = false
		r.logger.Printf("template %d deactivated by provider pause during campaign %d", cmd.TemplateID, campaign.ID)
	default:
		r.logger.Printf("unknown dispatch command %q", cmd.Kind)
	}
}

// finalize flips a drained campaign to completed. Campaigns always reach
// completed once every item is terminal, whatever the failure count.
func (r *BatchRunner) finalize(ctx context.Context, campaign *models.Campaign) (*Result, error) {
	counts, err := r.aggregator.Recompute(ctx, campaign)
	if err != nil {
		return nil, err
	}
	if counts.Pending > 0 {
		// A reprocess raced us and reset items; leave the campaign running
		return &Result{Remaining: counts.Pending}, nil
	}
	if campaign.CanTransitionTo(models.CampaignStatusCompleted) {
		if err := r.campaigns.UpdateStatus(ctx, campaign.ID, models.CampaignStatusCompleted); err != nil {
			return nil, fmt.Errorf("failed to complete campaign %d: %w", campaign.ID, err)
		}
		r.logger.Printf("campaign %d completed: sent=%d failed=%d", campaign.ID, campaign.Sent, campaign.Failed)
	}
	return &Result{Done: true}, nil
}
