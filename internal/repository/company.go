package repository

import (
	"context"
	"errors"

	"tiergate/internal/model"

	"gorm.io/gorm"
)

// CompanyInterface is the read-side view of tenants the gate needs. Company
// lifecycle is owned elsewhere; nothing here mutates them.
type CompanyInterface interface {
	GetByID(ctx context.Context, id string) (*model.Company, error)
	ListByTiers(ctx context.Context, tiers []model.SubscriptionTier) ([]*model.Company, error)
	ListAll(ctx context.Context) ([]*model.Company, error)
	PingContext(ctx context.Context) error
	WithTx(tx *gorm.DB) any
}

type CompanyRepository struct {
	db *gorm.DB
}

func NewCompanyRepository(db *gorm.DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

// GetByID returns (nil, nil) for an unknown company so callers can fail
// closed without branching on gorm errors.
func (r *CompanyRepository) GetByID(ctx context.Context, id string) (*model.Company, error) {
	var company model.Company
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&company).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &company, nil
}

func (r *CompanyRepository) ListByTiers(ctx context.Context, tiers []model.SubscriptionTier) ([]*model.Company, error) {
	if len(tiers) == 0 {
		return nil, nil
	}
	var companies []*model.Company
	err := r.db.WithContext(ctx).
		Where("subscription_tier IN ?", tiers).
		Find(&companies).Error
	return companies, err
}

func (r *CompanyRepository) ListAll(ctx context.Context) ([]*model.Company, error) {
	var companies []*model.Company
	err := r.db.WithContext(ctx).Find(&companies).Error
	return companies, err
}

func (r *CompanyRepository) PingContext(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *CompanyRepository) WithTx(tx *gorm.DB) any {
	return &CompanyRepository{db: tx}
}
