// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/waveline/waveline/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Update(ctx context.Context, entity *T) error
	Count(ctx context.Context, filter F) (int64, error)
}

// ChannelRepository defines operations for provider accounts
type ChannelRepository interface {
	Repository[models.Channel, models.ChannelFilter]
	ByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.Channel, error)
}

// CampaignRepository defines operations for campaigns
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Campaign, error)
	UpdateStatus(ctx context.Context, campaignID uint, status models.CampaignStatus) error
	ListNeedingWork(ctx context.Context, limit int) ([]*models.Campaign, error)
}

// StatusCounts holds per-status item counts for one campaign
type StatusCounts struct {
	Total     int64
	Pending   int64
	Sent      int64
	Failed    int64
	Delivered int64
	Read      int64
}

// CampaignItemRepository defines operations for campaign items
type CampaignItemRepository interface {
	Repository[models.CampaignItem, models.CampaignItemFilter]
	ListPending(ctx context.Context, campaignID uint, limit int) ([]*models.CampaignItem, error)
	ByProviderMessageID(ctx context.Context, providerMessageID string) (*models.CampaignItem, error)
	CountByStatus(ctx context.Context, campaignID uint) (*StatusCounts, error)
	ErrorHistogram(ctx context.Context, campaignID uint) (models.ErrorSummary, error)
	ResetFailed(ctx context.Context, campaignID uint, errorCodes []string) (int64, error)
}

// TemplateRepository defines operations for templates
type TemplateRepository interface {
	Repository[models.Template, models.TemplateFilter]
	ByChannelAndName(ctx context.Context, channelID uint, name, languageCode string) (*models.Template, error)
	Deactivate(ctx context.Context, templateID uint) error
}

// ContactRepository defines operations for contacts
type ContactRepository interface {
	Repository[models.Contact, models.ContactFilter]
	ByAddress(ctx context.Context, address string) (*models.Contact, error)
	UpsertOptOut(ctx context.Context, address, reason string, at time.Time) error
	ClearOptOut(ctx context.Context, address string) error
	TouchLastMessageSentAt(ctx context.Context, address string, at time.Time) error
}

// MessageRepository defines operations for the message audit log
type MessageRepository interface {
	Repository[models.Message, models.MessageFilter]
	ByProviderMessageID(ctx context.Context, providerMessageID string) (*models.Message, error)
}
