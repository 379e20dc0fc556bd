package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/waveline/waveline/models"
	"gorm.io/gorm"
)

// ChannelRepositoryImpl implements ChannelRepository
type ChannelRepositoryImpl struct {
	*BaseRepository[models.Channel, models.ChannelFilter]
}

func NewChannelRepository(db *gorm.DB) ChannelRepository {
	return &ChannelRepositoryImpl{BaseRepository: NewBaseRepository[models.Channel, models.ChannelFilter](db)}
}

func (r *ChannelRepositoryImpl) ByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.Channel, error) {
	db := r.getDB(ctx)
	var row models.Channel
	if err := db.Where("phone_number_id = ?", phoneNumberID).Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find channel by phone number id %s: %w", phoneNumberID, err)
	}
	return &row, nil
}

func (r *ChannelRepositoryImpl) applyFilter(db *gorm.DB, f models.ChannelFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.PhoneNumberID != nil {
		db = db.Where("phone_number_id = ?", *f.PhoneNumberID)
	}
	if f.IsActive != nil {
		db = db.Where("is_active = ?", *f.IsActive)
	}
	return db
}

func (r *ChannelRepositoryImpl) ByFilter(ctx context.Context, filter models.ChannelFilter, orderBy string, limit, offset int) ([]*models.Channel, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Channel{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Channel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ChannelRepositoryImpl) Count(ctx context.Context, filter models.ChannelFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Channel{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
