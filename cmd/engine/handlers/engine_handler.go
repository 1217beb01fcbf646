// Package handlers implements the echo HTTP surface over common/engine.Engine,
// grounded on the teacher's RunHandler (ExecuteWorkflow/GetRun/PatchRun).
package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/flowforge/engine/common/bootstrap"
	"github.com/flowforge/engine/common/dsl"
	"github.com/flowforge/engine/common/engine"
	"github.com/flowforge/engine/common/value"
	"github.com/flowforge/engine/cmd/engine/events"
)

// EngineHandler exposes Blueprint registration and Instance lifecycle
// operations over HTTP.
type EngineHandler struct {
	components *bootstrap.Components
	engine     *engine.Engine
	hub        *events.Hub
	upgrader   websocket.Upgrader
}

func NewEngineHandler(components *bootstrap.Components, eng *engine.Engine, hub *events.Hub) *EngineHandler {
	return &EngineHandler{
		components: components,
		engine:     eng,
		hub:        hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// RegisterBlueprint accepts a YAML or JSON workflow document, compiles it,
// and registers it under its own name. Compile warnings (unreachable
// nodes) are returned alongside the blueprint id rather than failing the
// request.
func (h *EngineHandler) RegisterBlueprint(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	doc, err := dsl.Parse(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid document: %v", err))
	}

	bp, warnings, err := h.engine.Compile(doc)
	if err != nil {
		h.components.Logger.Warn("blueprint compile failed", "name", doc.Name, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("compile failed: %v", err))
	}
	h.engine.RegisterBlueprint(bp)

	h.components.Logger.Info("blueprint registered", "id", bp.ID, "nodes", len(bp.Nodes))

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"blueprint_id": bp.ID,
		"nodes":        len(bp.Nodes),
		"warnings":     warnings,
	})
}

// StartInstance creates a new Instance of the named Blueprint and seeds
// its initial variables.
func (h *EngineHandler) StartInstance(c echo.Context) error {
	blueprintID := c.Param("id")

	var req struct {
		Vars map[string]interface{} `json:"vars"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	vars := make(map[string]value.Value, len(req.Vars))
	for k, v := range req.Vars {
		vars[k] = value.FromNative(v)
	}

	rateLimitKey := c.Request().Header.Get("X-Caller-ID")
	if rateLimitKey == "" {
		rateLimitKey = "anonymous"
	}

	instanceID, err := h.engine.Start(c.Request().Context(), blueprintID, vars, rateLimitKey)
	if err != nil {
		if rlErr, ok := err.(*engine.RateLimitError); ok {
			return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
				"error":   "rate_limit_exceeded",
				"message": rlErr.Error(),
				"details": map[string]interface{}{
					"tier":        string(rlErr.Tier),
					"limit":       rlErr.Limit,
					"retry_after": rlErr.RetryAfter,
				},
			})
		}
		h.components.Logger.Error("failed to start instance", "blueprint_id", blueprintID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to start instance: %v", err))
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"instance_id":  instanceID,
		"blueprint_id": blueprintID,
	})
}

// GetStatus returns an Instance's current lifecycle status.
func (h *EngineHandler) GetStatus(c echo.Context) error {
	instanceID := c.Param("id")

	status, err := h.engine.Status(c.Request().Context(), instanceID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "instance not found")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"instance_id": instanceID,
		"status":      status,
	})
}

// GetVariables returns an Instance's full variable scope.
func (h *EngineHandler) GetVariables(c echo.Context) error {
	instanceID := c.Param("id")

	vars, err := h.engine.Variables(c.Request().Context(), instanceID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "instance not found")
	}

	out := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		out[k] = v.ToNative()
	}
	return c.JSON(http.StatusOK, out)
}

// CancelInstance marks a running Instance Failed with a cancellation cause.
func (h *EngineHandler) CancelInstance(c echo.Context) error {
	instanceID := c.Param("id")

	if err := h.engine.Cancel(c.Request().Context(), instanceID); err != nil {
		h.components.Logger.Error("failed to cancel instance", "instance_id", instanceID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to cancel instance")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"instance_id": instanceID, "status": "cancelled"})
}

// PatchInstance applies an RFC 6902 JSON Patch to an Instance's variables.
func (h *EngineHandler) PatchInstance(c echo.Context) error {
	instanceID := c.Param("id")

	body, err := readBody(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	if err := h.engine.Patch(c.Request().Context(), instanceID, body); err != nil {
		h.components.Logger.Warn("failed to patch instance", "instance_id", instanceID, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("patch failed: %v", err))
	}

	vars, err := h.engine.Variables(c.Request().Context(), instanceID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "patch applied but failed to reload variables")
	}
	out := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		out[k] = v.ToNative()
	}
	return c.JSON(http.StatusOK, out)
}

// StreamEvents upgrades the connection to a WebSocket and attaches it as a
// watcher of the given instance's event history.
func (h *EngineHandler) StreamEvents(c echo.Context) error {
	instanceID := c.Param("id")

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.components.Logger.Error("websocket upgrade failed", "instance_id", instanceID, "error", err)
		return err
	}
	h.hub.Attach(conn, instanceID)
	return nil
}

func readBody(c echo.Context) ([]byte, error) {
	return io.ReadAll(c.Request().Body)
}
