package v1

import (
	"encoding/json"

	"tiergate/pkg/constraints"
)

// FlagDefinition is the wire form of a global feature flag as stored in etcd
// and streamed to SDK clients.
type FlagDefinition struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Category       string `json:"category"`
	RequiredTier   string `json:"required_tier"`
	DefaultEnabled bool   `json:"default_enabled"`
	Version        int    `json:"version"`  // flag version, bumped per admin edit
	Revision       int64  `json:"revision"` // overall etcd revision
}

// Override is the wire form of a per-company enable/disable decision.
type Override struct {
	CompanyID string `json:"company_id"`
	FlagName  string `json:"flag_name"`
	Enabled   bool   `json:"enabled"`
	EnabledBy string `json:"enabled_by"`
	Revision  int64  `json:"revision"`
}

// Decision is a single resolved gate answer. Err is empty on success; a
// populated Err always implies Enabled=false.
type Decision struct {
	Enabled bool   `json:"enabled"`
	Err     string `json:"error,omitempty"`
}

// Message is a single change event on the stream plane.
type Message struct {
	Kind      string             `json:"kind"` // constraints.KindFlag or KindOverride
	FlagName  string             `json:"flag_name"`
	CompanyID string             `json:"company_id,omitempty"` // only for overrides
	Enabled   bool               `json:"enabled"`              // only for overrides
	Version   int                `json:"version"`
	Revision  int64              `json:"revision"`
	Action    constraints.Action `json:"action"`
}

func (f *FlagDefinition) ToJSON() string {
	b, err := json.Marshal(f)
	if err != nil {
		panic("tiergate serialization failed: " + err.Error())
	}
	return string(b)
}

func (o *Override) ToJSON() string {
	b, err := json.Marshal(o)
	if err != nil {
		panic("tiergate serialization failed: " + err.Error())
	}
	return string(b)
}
