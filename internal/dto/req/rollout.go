package req

// Rollout requests address the flag by ID and the targets by scope. The
// handler maps each to one RolloutService operation.

type CompanyRolloutRequest struct {
	CompanyID string `json:"company_id" binding:"required"`
	FlagID    uint64 `json:"flag_id" binding:"required"`
}

type TierRolloutRequest struct {
	Tiers  []string `json:"tiers" binding:"required,min=1"`
	FlagID uint64   `json:"flag_id" binding:"required"`
}

type CompaniesRolloutRequest struct {
	CompanyIDs []string `json:"company_ids"`
	FlagID     uint64   `json:"flag_id" binding:"required"`
}

type GlobalRolloutRequest struct {
	FlagID uint64 `json:"flag_id" binding:"required"`
}
