package resp

import (
	"time"

	v1 "tiergate/pkg/api/v1"
)

type SaveFlagResponse struct {
	Version int `json:"version"`
}

type GetFlagResponse struct {
	*FlagItem
}

type SnapshotResponse struct {
	Decisions map[string]bool `json:"decisions"`
	Revision  int64           `json:"revision"`
}

type DefinitionsResponse struct {
	Data     []v1.FlagDefinition `json:"data"`
	Revision int64               `json:"revision"`
}

type EvalResponse struct {
	Enabled bool `json:"enabled"`
}

type BatchEvalResponse struct {
	Results map[string]v1.Decision `json:"results"`
}

type FlagItem struct {
	ID             uint64    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	RequiredTier   string    `json:"required_tier"`
	DefaultEnabled bool      `json:"default_enabled"`
	Version        int       `json:"version"`
	UpdatedAt      time.Time `json:"updated_at"`
	UpdatedBy      string    `json:"updated_by"`
}

type AuditLogItem struct {
	ID        int64     `json:"id"`
	FlagName  string    `json:"flag_name"`
	CompanyID string    `json:"company_id,omitempty"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	Operator  string    `json:"operator"`
	CreatedAt time.Time `json:"created_at"`
}
