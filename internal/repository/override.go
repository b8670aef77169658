package repository

import (
	"context"
	"errors"

	"tiergate/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OverrideInterface defines persistence for per-company override rows.
// Upsert is the only write path: the (company, flag) unique index makes
// repeated rollouts idempotent and last-write-wins.
type OverrideInterface interface {
	Get(ctx context.Context, companyID string, flagID uint64) (*model.CompanyFeatureFlag, error)
	Upsert(ctx context.Context, override *model.CompanyFeatureFlag) error
	BulkUpsert(ctx context.Context, overrides []*model.CompanyFeatureFlag) error
	ListByFlag(ctx context.Context, flagID uint64) ([]*model.CompanyFeatureFlag, error)
	ListByCompany(ctx context.Context, companyID string) ([]*model.CompanyFeatureFlag, error)
	WithTx(tx *gorm.DB) any
}

type OverrideRepository struct {
	db *gorm.DB
}

func NewOverrideRepository(db *gorm.DB) *OverrideRepository {
	return &OverrideRepository{db: db}
}

func (r *OverrideRepository) Get(ctx context.Context, companyID string, flagID uint64) (*model.CompanyFeatureFlag, error) {
	var override model.CompanyFeatureFlag
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND feature_flag_id = ?", companyID, flagID).
		First(&override).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &override, nil
}

func (r *OverrideRepository) Upsert(ctx context.Context, override *model.CompanyFeatureFlag) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "company_id"}, {Name: "feature_flag_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "enabled_by", "enabled_at"}),
	}).Create(override).Error
}

// BulkUpsert writes all rows in one statement; the surrounding transaction
// decides atomicity. An empty slice is a no-op.
func (r *OverrideRepository) BulkUpsert(ctx context.Context, overrides []*model.CompanyFeatureFlag) error {
	if len(overrides) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "company_id"}, {Name: "feature_flag_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "enabled_by", "enabled_at"}),
	}).Create(&overrides).Error
}

func (r *OverrideRepository) ListByFlag(ctx context.Context, flagID uint64) ([]*model.CompanyFeatureFlag, error) {
	var overrides []*model.CompanyFeatureFlag
	err := r.db.WithContext(ctx).
		Where("feature_flag_id = ?", flagID).
		Find(&overrides).Error
	return overrides, err
}

func (r *OverrideRepository) ListByCompany(ctx context.Context, companyID string) ([]*model.CompanyFeatureFlag, error) {
	var overrides []*model.CompanyFeatureFlag
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Find(&overrides).Error
	return overrides, err
}

func (r *OverrideRepository) WithTx(tx *gorm.DB) any {
	return &OverrideRepository{db: tx}
}
