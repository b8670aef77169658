package api

import (
	"context"

	"tiergate/internal/dto/req"
	"tiergate/internal/dto/resp"
	"tiergate/internal/service"
	v1 "tiergate/pkg/api/v1"

	"github.com/gin-gonic/gin"
)

type FlagProvider interface {
	SaveFlag(ctx context.Context, def v1.FlagDefinition, operator string) (int, error)
	DeleteFlag(ctx context.Context, name, operator string) error
	GetFlag(ctx context.Context, name string) (*resp.FlagItem, error)
	ListFlags(ctx context.Context, category, search string) ([]resp.FlagItem, error)
	GetFlagAudits(ctx context.Context, name string) ([]resp.AuditLogItem, error)
	Health(ctx context.Context) error
}

type FlagHandler struct {
	service FlagProvider
}

func NewFlagHandler(service FlagProvider) *FlagHandler {
	return &FlagHandler{service: service}
}

func (h *FlagHandler) SaveFlag(c *gin.Context) {
	var r req.SaveFlagRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(400, gin.H{"error": "JSON format error"})
		return
	}
	operator := service.GetOperator(c.Request.Context())
	version, err := h.service.SaveFlag(c.Request.Context(), v1.FlagDefinition{
		Name:           r.Name,
		Description:    r.Description,
		Category:       r.Category,
		RequiredTier:   r.RequiredTier,
		DefaultEnabled: r.DefaultEnabled,
	}, operator)
	if err != nil {
		if err == service.ErrInvalidTier {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, resp.SaveFlagResponse{Version: version})
}

func (h *FlagHandler) GetFlag(c *gin.Context) {
	var r req.GetFlagRequest
	if err := c.ShouldBindUri(&r); err != nil {
		c.JSON(400, gin.H{"error": "invalid name"})
		return
	}

	item, err := h.service.GetFlag(c.Request.Context(), r.Name)
	if err != nil {
		if err == service.ErrFlagNotFound {
			c.JSON(404, gin.H{"error": err.Error()})
			return
		}
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, resp.GetFlagResponse{FlagItem: item})
}

func (h *FlagHandler) ListFlags(c *gin.Context) {
	category := c.Query("category")
	search := c.Query("search")

	flags, err := h.service.ListFlags(c.Request.Context(), category, search)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, flags)
}

func (h *FlagHandler) GetFlagAudits(c *gin.Context) {
	name := c.Param("name")

	audits, err := h.service.GetFlagAudits(c.Request.Context(), name)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, audits)
}

func (h *FlagHandler) DeleteFlag(c *gin.Context) {
	name := c.Param("name")
	operator := service.GetOperator(c.Request.Context())

	if err := h.service.DeleteFlag(c.Request.Context(), name, operator); err != nil {
		if err == service.ErrFlagNotFound {
			c.JSON(404, gin.H{"error": err.Error()})
			return
		}
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"status": "deleted"})
}

func (h *FlagHandler) HealthCheck(c *gin.Context) {
	if err := h.service.Health(c.Request.Context()); err != nil {
		c.JSON(503, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"status": "ok"})
}
