package model

import "time"

// FlagAudit records one gate mutation. CompanyID is empty for global flag
// edits and set for per-company override changes.
type FlagAudit struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	FlagName  string    `json:"flag_name" gorm:"size:128;index"`
	CompanyID string    `json:"company_id" gorm:"size:36;index"`
	OldValue  string    `json:"old_value" gorm:"type:text"`
	NewValue  string    `json:"new_value" gorm:"type:text"`
	Operator  string    `json:"operator" gorm:"size:64"`
	TraceID   string    `json:"trace_id" gorm:"size:36;index"`
	IP        string    `json:"ip" gorm:"size:45"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}
