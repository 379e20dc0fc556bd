package dispatch

import (
	"context"
	"fmt"

	"github.com/waveline/waveline/models"
	"github.com/waveline/waveline/repository"
)

// Aggregator recomputes campaign counters and the error histogram from item
// state. It is the single source of truth for those numbers: always a full
// recompute, never an increment, so it is safe to run against state that a
// concurrent webhook is still updating.
type Aggregator struct {
	campaigns repository.CampaignRepository
	items     repository.CampaignItemRepository
}

func NewAggregator(campaigns repository.CampaignRepository, items repository.CampaignItemRepository) *Aggregator {
	return &Aggregator{campaigns: campaigns, items: items}
}

// Recompute counts items per status, rebuilds the error histogram from
// failed items and writes the result onto the campaign. Items that went on
// to delivered/read stay counted as sent.
func (a *Aggregator) Recompute(ctx context.Context, campaign *models.Campaign) (*repository.StatusCounts, error) {
	counts, err := a.items.CountByStatus(ctx, campaign.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count items for campaign %d: %w", campaign.ID, err)
	}
	histogram, err := a.items.ErrorHistogram(ctx, campaign.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to build error histogram for campaign %d: %w", campaign.ID, err)
	}

	campaign.TotalItems = counts.Total
	campaign.Sent = counts.Sent + counts.Delivered + counts.Read
	campaign.Failed = counts.Failed
	campaign.Delivered = counts.Delivered + counts.Read // read implies delivered
	campaign.Read = counts.Read
	campaign.ErrorSummary = histogram

	if err := a.campaigns.Update(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to persist counters for campaign %d: %w", campaign.ID, err)
	}
	return counts, nil
}
