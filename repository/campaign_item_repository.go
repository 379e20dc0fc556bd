package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/waveline/waveline/models"
	"gorm.io/gorm"
)

// CampaignItemRepositoryImpl implements CampaignItemRepository
type CampaignItemRepositoryImpl struct {
	*BaseRepository[models.CampaignItem, models.CampaignItemFilter]
}

func NewCampaignItemRepository(db *gorm.DB) CampaignItemRepository {
	return &CampaignItemRepositoryImpl{BaseRepository: NewBaseRepository[models.CampaignItem, models.CampaignItemFilter](db)}
}

// ListPending returns up to limit pending items, oldest first for fairness
func (r *CampaignItemRepositoryImpl) ListPending(ctx context.Context, campaignID uint, limit int) ([]*models.CampaignItem, error) {
	if limit <= 0 {
		limit = 100
	}
	db := r.getDB(ctx)
	var rows []*models.CampaignItem
	if err := db.Where("campaign_id = ? AND status = ?", campaignID, models.ItemStatusPending).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *CampaignItemRepositoryImpl) ByProviderMessageID(ctx context.Context, providerMessageID string) (*models.CampaignItem, error) {
	db := r.getDB(ctx)
	var row models.CampaignItem
	if err := db.Where("provider_message_id = ?", providerMessageID).Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find item by provider message id %s: %w", providerMessageID, err)
	}
	return &row, nil
}

// CountByStatus recomputes per-status counts across all items of a campaign
func (r *CampaignItemRepositoryImpl) CountByStatus(ctx context.Context, campaignID uint) (*StatusCounts, error) {
	db := r.getDB(ctx)

	var rows []struct {
		Status models.ItemStatus
		Count  int64
	}
	if err := db.Model(&models.CampaignItem{}).
		Select("status, COUNT(*) AS count").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := &StatusCounts{}
	for _, row := range rows {
		counts.Total += row.Count
		switch row.Status {
		case models.ItemStatusPending:
			counts.Pending += row.Count
		case models.ItemStatusSent:
			counts.Sent += row.Count
		case models.ItemStatusFailed:
			counts.Failed += row.Count
		case models.ItemStatusDelivered:
			counts.Delivered += row.Count
		case models.ItemStatusRead:
			counts.Read += row.Count
		}
	}
	return counts, nil
}

// ErrorHistogram recomputes the error-code histogram from failed items
func (r *CampaignItemRepositoryImpl) ErrorHistogram(ctx context.Context, campaignID uint) (models.ErrorSummary, error) {
	db := r.getDB(ctx)

	var rows []struct {
		ErrorCode string
		Count     int64
	}
	if err := db.Model(&models.CampaignItem{}).
		Select("error_code, COUNT(*) AS count").
		Where("campaign_id = ? AND status = ? AND error_code IS NOT NULL", campaignID, models.ItemStatusFailed).
		Group("error_code").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	histogram := models.ErrorSummary{}
	for _, row := range rows {
		histogram[row.ErrorCode] = row.Count
	}
	return histogram, nil
}

// ResetFailed moves failed items back to pending and clears error and retry
// fields. An empty errorCodes slice targets every failed item. Items not
// matching the filter are untouched. Returns the number of reset rows.
func (r *CampaignItemRepositoryImpl) ResetFailed(ctx context.Context, campaignID uint, errorCodes []string) (int64, error) {
	db := r.getDB(ctx)

	query := db.Model(&models.CampaignItem{}).
		Where("campaign_id = ? AND status = ?", campaignID, models.ItemStatusFailed)
	if len(errorCodes) > 0 {
		query = query.Where("error_code = ANY(?)", pq.StringArray(errorCodes))
	}

	result := query.Updates(map[string]any{
		"status":              models.ItemStatusPending,
		"error_code":          nil,
		"error_message":       nil,
		"retry_count":         0,
		"provider_message_id": nil,
	})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset failed items: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *CampaignItemRepositoryImpl) applyFilter(db *gorm.DB, f models.CampaignItemFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.CampaignID != nil {
		db = db.Where("campaign_id = ?", *f.CampaignID)
	}
	if f.Recipient != nil {
		db = db.Where("recipient = ?", *f.Recipient)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.ProviderMessageID != nil {
		db = db.Where("provider_message_id = ?", *f.ProviderMessageID)
	}
	if len(f.ErrorCodes) > 0 {
		db = db.Where("error_code = ANY(?)", pq.StringArray(f.ErrorCodes))
	}
	return db
}

func (r *CampaignItemRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignItemFilter, orderBy string, limit, offset int) ([]*models.CampaignItem, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.CampaignItem{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.CampaignItem
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *CampaignItemRepositoryImpl) Count(ctx context.Context, filter models.CampaignItemFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.CampaignItem{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
