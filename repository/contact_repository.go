package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/waveline/waveline/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContactRepositoryImpl implements ContactRepository
type ContactRepositoryImpl struct {
	*BaseRepository[models.Contact, models.ContactFilter]
}

func NewContactRepository(db *gorm.DB) ContactRepository {
	return &ContactRepositoryImpl{BaseRepository: NewBaseRepository[models.Contact, models.ContactFilter](db)}
}

func (r *ContactRepositoryImpl) ByAddress(ctx context.Context, address string) (*models.Contact, error) {
	db := r.getDB(ctx)
	var row models.Contact
	if err := db.Where("address = ?", address).Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find contact by address %s: %w", address, err)
	}
	return &row, nil
}

// UpsertOptOut marks a contact opted out, creating the record when the
// inbound sender has never been messaged before. Upsert keeps the webhook
// path race-safe against a concurrent send creating the same contact.
func (r *ContactRepositoryImpl) UpsertOptOut(ctx context.Context, address, reason string, at time.Time) error {
	db := r.getDB(ctx)
	contact := models.Contact{
		Address:      address,
		OptOut:       true,
		OptOutReason: &reason,
		OptOutDate:   &at,
		CreatedAt:    at,
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "address"}},
		DoUpdates: clause.Assignments(map[string]any{
			"opt_out":        true,
			"opt_out_reason": reason,
			"opt_out_date":   at,
			"updated_at":     at,
		}),
	}).Create(&contact).Error
}

// ClearOptOut reverses an opt-out by explicit operator action
func (r *ContactRepositoryImpl) ClearOptOut(ctx context.Context, address string) error {
	db := r.getDB(ctx)
	return db.Model(&models.Contact{}).
		Where("address = ?", address).
		Updates(map[string]any{
			"opt_out":        false,
			"opt_out_reason": nil,
			"opt_out_date":   nil,
			"updated_at":     time.Now().UTC(),
		}).Error
}

// TouchLastMessageSentAt records a successful send time, creating the
// contact row on first contact
func (r *ContactRepositoryImpl) TouchLastMessageSentAt(ctx context.Context, address string, at time.Time) error {
	db := r.getDB(ctx)
	contact := models.Contact{
		Address:           address,
		LastMessageSentAt: &at,
		CreatedAt:         at,
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "address"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_message_sent_at": at,
			"updated_at":           at,
		}),
	}).Create(&contact).Error
}

func (r *ContactRepositoryImpl) applyFilter(db *gorm.DB, f models.ContactFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.Address != nil {
		db = db.Where("address = ?", *f.Address)
	}
	if f.OptOut != nil {
		db = db.Where("opt_out = ?", *f.OptOut)
	}
	return db
}

func (r *ContactRepositoryImpl) ByFilter(ctx context.Context, filter models.ContactFilter, orderBy string, limit, offset int) ([]*models.Contact, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Contact{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Contact
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ContactRepositoryImpl) Count(ctx context.Context, filter models.ContactFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Contact{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
