package api

import (
	"context"

	"tiergate/internal/dto/req"
	"tiergate/internal/model"
	"tiergate/internal/service"

	"github.com/gin-gonic/gin"
)

type RolloutProvider interface {
	EnableForCompany(ctx context.Context, companyID string, flagID uint64, actor string) error
	DisableForCompany(ctx context.Context, companyID string, flagID uint64, actor string) error
	EnableForTiers(ctx context.Context, tiers []model.SubscriptionTier, flagID uint64, actor string) error
	EnableForCompanies(ctx context.Context, companyIDs []string, flagID uint64, actor string) error
	EnableForAllCompanies(ctx context.Context, flagID uint64, actor string) error
}

type RolloutHandler struct {
	service RolloutProvider
}

func NewRolloutHandler(service RolloutProvider) *RolloutHandler {
	return &RolloutHandler{service: service}
}

func (h *RolloutHandler) EnableForCompany(c *gin.Context) {
	h.companyRollout(c, true)
}

func (h *RolloutHandler) DisableForCompany(c *gin.Context) {
	h.companyRollout(c, false)
}

func (h *RolloutHandler) companyRollout(c *gin.Context, enable bool) {
	var r req.CompanyRolloutRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(400, gin.H{"error": "JSON format error"})
		return
	}
	actor := service.GetOperator(c.Request.Context())

	var err error
	if enable {
		err = h.service.EnableForCompany(c.Request.Context(), r.CompanyID, r.FlagID, actor)
	} else {
		err = h.service.DisableForCompany(c.Request.Context(), r.CompanyID, r.FlagID, actor)
	}
	h.finish(c, err)
}

func (h *RolloutHandler) EnableForTiers(c *gin.Context) {
	var r req.TierRolloutRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(400, gin.H{"error": "JSON format error"})
		return
	}

	tiers := make([]model.SubscriptionTier, 0, len(r.Tiers))
	for _, t := range r.Tiers {
		tier := model.ParseTier(t)
		if !tier.Valid() {
			c.JSON(400, gin.H{"error": "invalid tier: " + t})
			return
		}
		tiers = append(tiers, tier)
	}

	actor := service.GetOperator(c.Request.Context())
	h.finish(c, h.service.EnableForTiers(c.Request.Context(), tiers, r.FlagID, actor))
}

func (h *RolloutHandler) EnableForCompanies(c *gin.Context) {
	var r req.CompaniesRolloutRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(400, gin.H{"error": "JSON format error"})
		return
	}
	actor := service.GetOperator(c.Request.Context())
	h.finish(c, h.service.EnableForCompanies(c.Request.Context(), r.CompanyIDs, r.FlagID, actor))
}

func (h *RolloutHandler) EnableForAll(c *gin.Context) {
	var r req.GlobalRolloutRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(400, gin.H{"error": "JSON format error"})
		return
	}
	actor := service.GetOperator(c.Request.Context())
	h.finish(c, h.service.EnableForAllCompanies(c.Request.Context(), r.FlagID, actor))
}

func (h *RolloutHandler) finish(c *gin.Context, err error) {
	if err != nil {
		if err == service.ErrFlagNotFound {
			c.JSON(404, gin.H{"error": err.Error()})
			return
		}
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"status": "ok"})
}
