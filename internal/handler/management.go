package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/akave-ai/logreader/internal/reader"
	"github.com/akave-ai/logreader/internal/registry"
	"github.com/akave-ai/logreader/internal/response"
)

// Replayer re-delivers a time window of one source.
type Replayer interface {
	Replay(ctx context.Context, src *registry.Source, from, to time.Time) (int, error)
}

// ManagementHandler serves the source inventory and historical loads.
type ManagementHandler struct {
	Registry *registry.Registry
	Replayer Replayer
	Logger   zerolog.Logger
}

type loadResponse struct {
	Account   string    `json:"account"`
	Table     string    `json:"table"`
	From      time.Time `json:"fromTime"`
	To        time.Time `json:"toTime"`
	Delivered int       `json:"delivered"`
}

// GetInfo lists sources grouped by account (GET /api/management).
func (h *ManagementHandler) GetInfo(c echo.Context) error {
	return response.OK(c, h.Registry.Report(), "")
}

// LoadData replays one source over a single-day window
// (POST /api/management/load?account=&table=&fromTime=&toTime=).
func (h *ManagementHandler) LoadData(c echo.Context) error {
	account, table := c.QueryParam("account"), c.QueryParam("table")
	if account == "" || table == "" {
		return response.BadRequest(c, "account and table are required", "missing query parameter")
	}
	from, err := parseTime(c.QueryParam("fromTime"))
	if err != nil {
		return response.BadRequest(c, "invalid fromTime", err.Error())
	}
	to, err := parseTime(c.QueryParam("toTime"))
	if err != nil {
		return response.BadRequest(c, "invalid toTime", err.Error())
	}

	src, ok := h.Registry.Find(account, table)
	if !ok {
		return response.NotFound(c, "source not found", fmt.Sprintf("no table %s in account %s", table, account))
	}

	delivered, err := h.Replayer.Replay(c.Request().Context(), src, from, to)
	switch {
	case errors.Is(err, reader.ErrMultiDayRange):
		return response.BadRequest(c, "Please use time range in ONE DAY", err.Error())
	case errors.Is(err, reader.ErrInvertedRange):
		return response.BadRequest(c, "fromTime must not be after toTime", err.Error())
	case err != nil:
		h.Logger.Error().Err(err).Str("account", src.Account).Str("table", src.Table).Int("delivered", delivered).Msg("historical load failed")
		return response.InternalError(c, fmt.Sprintf("load failed after %d events", delivered), err.Error())
	}

	return response.OK(c, loadResponse{
		Account:   src.Account,
		Table:     src.Table,
		From:      from.UTC(),
		To:        to.UTC(),
		Delivered: delivered,
	}, "")
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// parseTime accepts RFC 3339 or a zoneless timestamp, which is read as UTC.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("value is required")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
