package repository

import (
	"context"
	"errors"

	"tiergate/internal/model"

	"gorm.io/gorm"
)

// SDKRepository resolves an API key to the company it is scoped to.
type SDKRepository interface {
	ResolveAPIKey(ctx context.Context, apiKey string) (string, error)
}

var ErrInvalidAPIKey = errors.New("invalid API key")

type SDKKeyRepository struct {
	db *gorm.DB
}

func NewSDKKeyRepository(db *gorm.DB) *SDKKeyRepository {
	return &SDKKeyRepository{db: db}
}

// ResolveAPIKey returns the owning company ID for an active key.
func (r *SDKKeyRepository) ResolveAPIKey(ctx context.Context, apiKey string) (string, error) {
	var client model.SDKClient
	err := r.db.WithContext(ctx).
		Where("api_key = ? AND status = 1", apiKey).
		First(&client).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrInvalidAPIKey
		}
		return "", err
	}
	return client.CompanyID, nil
}
