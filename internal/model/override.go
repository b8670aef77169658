package model

import "time"

// CompanyFeatureFlag is an explicit per-company enable/disable decision.
// At most one row exists per (company, flag); rollouts upsert, never append.
// Disabling writes Enabled=false rather than deleting the row, so the
// decision survives later tier changes.
type CompanyFeatureFlag struct {
	ID            uint64    `gorm:"primaryKey" json:"id"`
	CompanyID     string    `gorm:"size:36;uniqueIndex:idx_company_flag" json:"company_id"`
	FeatureFlagID uint64    `gorm:"uniqueIndex:idx_company_flag" json:"feature_flag_id"`
	Enabled       bool      `json:"enabled"`
	EnabledBy     string    `gorm:"size:64" json:"enabled_by"`
	EnabledAt     time.Time `gorm:"autoUpdateTime" json:"enabled_at"`
}
