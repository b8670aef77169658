package model

// SDKClient binds an API key to the company whose gates it may read.
type SDKClient struct {
	ID        uint64 `gorm:"primaryKey"`
	CompanyID string `gorm:"size:36;not null;index"`
	APIKey    string `gorm:"size:64;not null;uniqueIndex"`
	Status    int    `gorm:"default:1"`
}
