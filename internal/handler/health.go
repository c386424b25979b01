package handler

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/akave-ai/logreader/internal/response"
	"github.com/akave-ai/logreader/internal/scheduler"
)

// HealthChecker is implemented by *scheduler.Scheduler.
type HealthChecker interface {
	Health() error
	LastTick() (scheduler.TickStats, bool)
}

// HealthHandler serves GET /api/isalive.
type HealthHandler struct {
	Name    string
	Version string
	Env     string
	Checker HealthChecker
}

type issueIndicator struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type isAliveResponse struct {
	Name            string               `json:"name"`
	Version         string               `json:"version"`
	Env             string               `json:"env"`
	IssueIndicators []issueIndicator     `json:"issueIndicators"`
	LastTick        *scheduler.TickStats `json:"lastTick,omitempty"`
	CheckedAt       time.Time            `json:"checkedAt"`
}

func (h *HealthHandler) IsAlive(c echo.Context) error {
	if err := h.Checker.Health(); err != nil {
		return response.InternalError(c, "Job is unhealthy: "+err.Error(), err.Error())
	}
	out := isAliveResponse{
		Name:            h.Name,
		Version:         h.Version,
		Env:             h.Env,
		IssueIndicators: []issueIndicator{},
		CheckedAt:       time.Now().UTC(),
	}
	if last, ok := h.Checker.LastTick(); ok {
		if last.Failures > 0 {
			out.IssueIndicators = append(out.IssueIndicators, issueIndicator{Type: "FailedSources", Value: strconv.Itoa(last.Failures)})
		}
		out.LastTick = &last
	}
	return response.OK(c, out, "")
}
