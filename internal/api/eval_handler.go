package api

import (
	"context"

	"tiergate/internal/dto/req"
	"tiergate/internal/dto/resp"
	"tiergate/internal/metrics"
	v1 "tiergate/pkg/api/v1"

	"github.com/gin-gonic/gin"
)

type EvalProvider interface {
	IsFeatureEnabled(ctx context.Context, companyID, featureName string) bool
	EvaluateAll(ctx context.Context, companyID string, featureNames []string) map[string]v1.Decision
}

// EvalHandler serves gate decisions to SDK callers. The company an API key
// is bound to is injected by the SDK auth middleware; callers cannot
// evaluate on behalf of another tenant.
type EvalHandler struct {
	resolver EvalProvider
}

func NewEvalHandler(resolver EvalProvider) *EvalHandler {
	return &EvalHandler{resolver: resolver}
}

func (h *EvalHandler) Evaluate(c *gin.Context) {
	companyID := c.GetString("company_id")
	feature := c.Param("name")

	enabled := h.resolver.IsFeatureEnabled(c.Request.Context(), companyID, feature)
	if enabled {
		metrics.EvalCounter.WithLabelValues("enabled").Inc()
	} else {
		metrics.EvalCounter.WithLabelValues("disabled").Inc()
	}
	c.JSON(200, resp.EvalResponse{Enabled: enabled})
}

func (h *EvalHandler) EvaluateBatch(c *gin.Context) {
	companyID := c.GetString("company_id")

	var r req.BatchEvalRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(400, gin.H{"error": "JSON format error"})
		return
	}

	results := h.resolver.EvaluateAll(c.Request.Context(), companyID, r.Features)
	for _, d := range results {
		switch {
		case d.Err != "":
			metrics.EvalCounter.WithLabelValues("error").Inc()
		case d.Enabled:
			metrics.EvalCounter.WithLabelValues("enabled").Inc()
		default:
			metrics.EvalCounter.WithLabelValues("disabled").Inc()
		}
	}
	c.JSON(200, resp.BatchEvalResponse{Results: results})
}
