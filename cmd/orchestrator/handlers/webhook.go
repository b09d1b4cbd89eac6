// Package handlers wires the HTTP surface for the webhook registry (spec
// §4.8) onto an Echo router, matching the teacher's handler/JSON-binding
// shape (cmd/orchestrator/handlers).
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/orchestrator/common/logger"
	"github.com/lyzr/orchestrator/internal/graph"
	"github.com/lyzr/orchestrator/internal/webhook"
)

// WebhookHandler exposes the register/trigger HTTP endpoints over a webhook.Registry.
type WebhookHandler struct {
	registry *webhook.Registry
	log      *logger.Logger
}

func NewWebhookHandler(registry *webhook.Registry, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{registry: registry, log: log}
}

type registerRequest struct {
	Nodes  []graph.Node `json:"nodes"`
	Edges  []graph.Edge `json:"edges"`
	UserID string       `json:"user_id"`
}

// Register handles POST /webhooks: binds a submitted graph to a new webhook id,
// owned by the given user_id for tiered rate limiting on trigger.
func (h *WebhookHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	g := graph.New(req.Nodes, req.Edges)
	reg := h.registry.Register(g, req.UserID)

	return c.JSON(http.StatusOK, map[string]string{
		"webhook_id": reg.WebhookID,
		"url":        reg.URL,
	})
}

// Trigger handles POST /hooks/:webhook_id: runs the bound graph synchronously
// with the request body as input and blocks for a terminal result.
func (h *WebhookHandler) Trigger(c echo.Context) error {
	webhookID := c.Param("webhook_id")

	var body any
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return c.JSON(http.StatusBadRequest, webhook.TriggerResult{OK: false, Error: "invalid JSON body"})
	}

	result := h.registry.Trigger(c.Request().Context(), webhookID, body)
	if !result.OK {
		h.log.Warn("webhook trigger failed", "webhook_id", webhookID, "error", result.Error)
	}
	return c.JSON(http.StatusOK, result)
}
