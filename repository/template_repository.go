package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/waveline/waveline/models"
	"gorm.io/gorm"
)

// TemplateRepositoryImpl implements TemplateRepository
type TemplateRepositoryImpl struct {
	*BaseRepository[models.Template, models.TemplateFilter]
}

func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &TemplateRepositoryImpl{BaseRepository: NewBaseRepository[models.Template, models.TemplateFilter](db)}
}

func (r *TemplateRepositoryImpl) ByChannelAndName(ctx context.Context, channelID uint, name, languageCode string) (*models.Template, error) {
	db := r.getDB(ctx)
	var row models.Template
	if err := db.Where("channel_id = ? AND name = ? AND language_code = ?", channelID, name, languageCode).
		Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find template %s/%s for channel %d: %w", name, languageCode, channelID, err)
	}
	return &row, nil
}

// Deactivate flips is_active off so subsequent dispatches stop using a
// template the provider paused or disabled
func (r *TemplateRepositoryImpl) Deactivate(ctx context.Context, templateID uint) error {
	db := r.getDB(ctx)
	return db.Model(&models.Template{}).
		Where("id = ?", templateID).
		Updates(map[string]any{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *TemplateRepositoryImpl) applyFilter(db *gorm.DB, f models.TemplateFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.ChannelID != nil {
		db = db.Where("channel_id = ?", *f.ChannelID)
	}
	if f.Name != nil {
		db = db.Where("name = ?", *f.Name)
	}
	if f.LanguageCode != nil {
		db = db.Where("language_code = ?", *f.LanguageCode)
	}
	if f.IsActive != nil {
		db = db.Where("is_active = ?", *f.IsActive)
	}
	return db
}

func (r *TemplateRepositoryImpl) ByFilter(ctx context.Context, filter models.TemplateFilter, orderBy string, limit, offset int) ([]*models.Template, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Template{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Template
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *TemplateRepositoryImpl) Count(ctx context.Context, filter models.TemplateFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Template{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
