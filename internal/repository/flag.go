package repository

import (
	"context"
	"errors"

	"tiergate/internal/model"

	"gorm.io/gorm"
)

// FlagInterface defines persistence for global flag definitions
type FlagInterface interface {
	GetByName(ctx context.Context, name string) (*model.FeatureFlag, error)
	GetByID(ctx context.Context, id uint64) (*model.FeatureFlag, error)
	GetAll(ctx context.Context) ([]*model.FeatureFlag, error)
	List(ctx context.Context, category, search string) ([]*model.FeatureFlag, error)
	Save(ctx context.Context, flag *model.FeatureFlag) error
	Delete(ctx context.Context, id uint64) error
	WithTx(tx *gorm.DB) any
}

type FlagRepository struct {
	db *gorm.DB
}

func NewFlagRepository(db *gorm.DB) *FlagRepository {
	return &FlagRepository{db: db}
}

// GetByName retrieves the flag definition by its unique name. A missing flag
// is (nil, nil), not an error.
func (r *FlagRepository) GetByName(ctx context.Context, name string) (*model.FeatureFlag, error) {
	var flag model.FeatureFlag
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&flag).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &flag, nil
}

func (r *FlagRepository) GetByID(ctx context.Context, id uint64) (*model.FeatureFlag, error) {
	var flag model.FeatureFlag
	if err := r.db.WithContext(ctx).First(&flag, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &flag, nil
}

func (r *FlagRepository) GetAll(ctx context.Context) ([]*model.FeatureFlag, error) {
	var flags []*model.FeatureFlag
	err := r.db.WithContext(ctx).Find(&flags).Error
	return flags, err
}

func (r *FlagRepository) List(ctx context.Context, category, search string) ([]*model.FeatureFlag, error) {
	var flags []*model.FeatureFlag
	query := r.db.WithContext(ctx)

	if category != "" {
		query = query.Where("category = ?", category)
	}
	if search != "" {
		query = query.Where("name LIKE ?", "%"+search+"%")
	}

	err := query.Order("updated_at DESC").Find(&flags).Error
	return flags, err
}

// Save creates or updates the flag definition
func (r *FlagRepository) Save(ctx context.Context, flag *model.FeatureFlag) error {
	return r.db.WithContext(ctx).Save(flag).Error
}

// Delete removes the definition and cascades to its overrides.
func (r *FlagRepository) Delete(ctx context.Context, id uint64) error {
	if err := r.db.WithContext(ctx).
		Where("feature_flag_id = ?", id).
		Delete(&model.CompanyFeatureFlag{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Delete(&model.FeatureFlag{}, id).Error
}

func (r *FlagRepository) WithTx(tx *gorm.DB) any {
	return &FlagRepository{db: tx}
}
