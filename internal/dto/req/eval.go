package req

type BatchEvalRequest struct {
	Features []string `json:"features" binding:"required,min=1"`
}
