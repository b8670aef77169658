package api

import (
	"context"
	"io"
	"strconv"

	"tiergate/internal/dto/resp"
	"tiergate/internal/service"
	v1 "tiergate/pkg/api/v1"
	"tiergate/pkg/constraints"
	"tiergate/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type StreamProvider interface {
	GetCompensation(lastRev int64) ([]v1.Message, bool)
	SnapshotFor(ctx context.Context, companyID string) (map[string]bool, int64, error)
	Definitions(ctx context.Context) ([]v1.FlagDefinition, int64)
}

type StreamHandler struct {
	service StreamProvider
	hub     *service.Hub
}

func NewStreamHandler(service StreamProvider, hub *service.Hub) *StreamHandler {
	return &StreamHandler{
		service: service,
		hub:     hub,
	}
}

// Watch streams gate changes for the authenticated company over SSE.
// Reconnecting clients pass last_rev; missed messages are replayed from the
// revision buffer, or a reset event tells them to snapshot again.
func (h *StreamHandler) Watch(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")

	companyID := c.GetString("company_id")
	if companyID == "" {
		logger.Warn("stream client without identity, refused", zap.String("ip", c.ClientIP()))
		return
	}
	logger.Info("stream client connected",
		zap.String("company_id", companyID),
		zap.String("ip", c.ClientIP()),
	)

	var lastRev int64
	if lastRevStr := c.Query("last_rev"); lastRevStr != "" {
		lastRev, _ = strconv.ParseInt(lastRevStr, 10, 64)
	}

	client := &service.Client{
		Send:      make(chan v1.Message, 128),
		CompanyID: companyID,
	}

	h.hub.Register <- client
	defer func() {
		h.hub.Unregister <- client
	}()

	messages, ok := h.service.GetCompensation(lastRev)
	maxSentRev := lastRev
	if ok {
		for _, msg := range messages {
			if !visibleTo(companyID, msg) {
				continue
			}
			c.SSEvent("message", msg)
			maxSentRev = msg.Revision
		}
	} else {
		c.SSEvent("reset", "revision_too_old")
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-client.Send:
			if !ok {
				return false
			}
			if msg.Kind == constraints.KindPing {
				c.SSEvent("ping", "pong")
				return true
			}
			// The hub already scoped overrides; drop replays.
			if msg.Revision <= maxSentRev {
				return true
			}
			c.SSEvent("message", msg)
			maxSentRev = msg.Revision
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// DashboardWatch streams every change, unscoped, for the admin UI.
func (h *StreamHandler) DashboardWatch(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")

	operator := service.GetOperator(c.Request.Context())
	logger.Info("dashboard client connected",
		zap.String("operator", operator),
		zap.String("ip", c.ClientIP()),
	)

	client := &service.Client{
		Send:      make(chan v1.Message, 128),
		CompanyID: "*",
	}

	h.hub.Register <- client
	defer func() {
		h.hub.Unregister <- client
	}()

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-client.Send:
			if !ok {
				return false
			}
			if msg.Kind == constraints.KindPing {
				c.SSEvent("ping", "pong")
				return true
			}
			c.SSEvent("message", msg)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// Snapshot returns the fully-resolved decision map for the authenticated
// company along with the revision to resume the watch from.
func (h *StreamHandler) Snapshot(c *gin.Context) {
	companyID := c.GetString("company_id")

	decisions, rev, err := h.service.SnapshotFor(c.Request.Context(), companyID)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, resp.SnapshotResponse{
		Decisions: decisions,
		Revision:  rev,
	})
}

// Definitions returns the cached global flag list (dashboard use).
func (h *StreamHandler) Definitions(c *gin.Context) {
	defs, rev := h.service.Definitions(c.Request.Context())
	c.JSON(200, resp.DefinitionsResponse{
		Data:     defs,
		Revision: rev,
	})
}

func visibleTo(companyID string, msg v1.Message) bool {
	if msg.Kind == constraints.KindFlag {
		return true
	}
	return msg.CompanyID == companyID
}
