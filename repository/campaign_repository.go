package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/waveline/waveline/models"
	"gorm.io/gorm"
)

// CampaignRepositoryImpl implements CampaignRepository
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db)}
}

func (r *CampaignRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Campaign, error) {
	db := r.getDB(ctx)
	var row models.Campaign
	if err := db.Where("uuid = ?", uuid).Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find campaign by uuid %s: %w", uuid, err)
	}
	return &row, nil
}

func (r *CampaignRepositoryImpl) UpdateStatus(ctx context.Context, campaignID uint, status models.CampaignStatus) error {
	db := r.getDB(ctx)
	return db.Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Update("status", status).Error
}

// ListNeedingWork returns campaigns left in processing, oldest first. The
// resume sweep uses it to pick up campaigns whose continuation was lost to
// a crash or queue outage.
func (r *CampaignRepositoryImpl) ListNeedingWork(ctx context.Context, limit int) ([]*models.Campaign, error) {
	if limit <= 0 {
		limit = 50
	}
	db := r.getDB(ctx)
	var rows []*models.Campaign
	if err := db.Where("status = ?", models.CampaignStatusProcessing).
		Order("updated_at ASC NULLS FIRST, id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *CampaignRepositoryImpl) applyFilter(db *gorm.DB, f models.CampaignFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.ChannelID != nil {
		db = db.Where("channel_id = ?", *f.ChannelID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.TemplateName != nil {
		db = db.Where("template_name = ?", *f.TemplateName)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *CampaignRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Campaign{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Campaign
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *CampaignRepositoryImpl) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Campaign{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
