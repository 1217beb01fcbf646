package main

import (
	"github.com/labstack/echo/v4"

	"github.com/flowforge/engine/cmd/engine/handlers"
)

func registerRoutes(e *echo.Echo, h *handlers.EngineHandler) {
	e.POST("/blueprints", h.RegisterBlueprint)

	e.POST("/blueprints/:id/instances", h.StartInstance)
	e.GET("/instances/:id", h.GetStatus)
	e.GET("/instances/:id/variables", h.GetVariables)
	e.POST("/instances/:id/cancel", h.CancelInstance)
	e.PATCH("/instances/:id/variables", h.PatchInstance)
	e.GET("/instances/:id/events", h.StreamEvents)
}
