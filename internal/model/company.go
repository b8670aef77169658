package model

import "time"

// Company is a tenant. The gate only ever reads the subscription tier;
// company lifecycle is owned by the billing side.
type Company struct {
	ID               string           `gorm:"primaryKey;size:36" json:"id"`
	Name             string           `gorm:"size:128" json:"name"`
	SubscriptionTier SubscriptionTier `gorm:"size:32;default:free;index" json:"subscription_tier"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}
