package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/akave-ai/logreader/internal/infrastructure/sinks"
)

// SinkHandler serves /api/sinks. It describes the registered sink types
// and which of them this process is configured to use.
type SinkHandler struct {
	Registry *sinks.Registry
	Active   []string
}

// ListTypes returns registered sink type names (GET /api/sinks/types).
func (h *SinkHandler) ListTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"types":  h.Registry.ListRegistered(),
		"active": h.Active,
	})
}

// GetAllTypesInfo returns the config spec of every sink type (GET /api/sinks/info).
func (h *SinkHandler) GetAllTypesInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"types": h.Registry.AllTypesInfo()})
}

// GetTypeInfo returns the config spec of one sink type (GET /api/sinks/types/:type).
func (h *SinkHandler) GetTypeInfo(c echo.Context) error {
	typeName := c.Param("type")
	if typeName == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing type in path"})
	}
	info, ok := h.Registry.GetTypeInfo(typeName)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown sink type: " + typeName})
	}
	return c.JSON(http.StatusOK, info)
}
