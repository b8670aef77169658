package model

import "time"

// FeatureFlag is the global definition of a gated capability.
//
// DefaultEnabled is persisted and editable over the admin API but is NOT
// consulted by gate resolution; only the tier comparison is. This mirrors the
// behavior the service has always had and is pinned by tests; do not wire it
// into the resolver without a migration plan.
type FeatureFlag struct {
	ID             uint64           `gorm:"primaryKey" json:"id"`
	Name           string           `gorm:"size:128;uniqueIndex" json:"name"`
	Description    string           `gorm:"type:text" json:"description"`
	Category       string           `gorm:"size:64;index" json:"category"`
	RequiredTier   SubscriptionTier `gorm:"size:32;default:free" json:"required_tier"`
	DefaultEnabled bool             `json:"default_enabled"`
	Version        int              `json:"version"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	UpdatedBy      string           `gorm:"size:64" json:"updated_by"`
}
