package req

type SaveFlagRequest struct {
	Name           string `json:"name" binding:"required"`
	Description    string `json:"description"`
	Category       string `json:"category"`
	RequiredTier   string `json:"required_tier" binding:"required"`
	DefaultEnabled bool   `json:"default_enabled"`
}

type GetFlagRequest struct {
	Name string `uri:"name" binding:"required"`
}
