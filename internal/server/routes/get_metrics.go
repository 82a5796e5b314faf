package routes

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/macrokg/internal/server/middleware"
	"github.com/OFFIS-RIT/macrokg/pkg/monitor"
)

const maxMetricsWindow = 90 * 24 * time.Hour

type metricsResponse struct {
	Since time.Time `json:"since"`
	monitor.Metrics
}

// parseWindow reads Go durations ("24h") and day counts ("7d").
func parseWindow(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 24 * time.Hour, true
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, false
		}
		return time.Duration(n) * 24 * time.Hour, true
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

// GetMetricsHandler aggregates the model calls of the last ?since window.
func GetMetricsHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App

	window, ok := parseWindow(c.QueryParam("since"))
	if !ok || window > maxMetricsWindow {
		return badRequest(c, "since must be a positive duration of at most 90d")
	}
	since := app.Now().UTC().Add(-window)

	logs, err := app.Calls.CallLogs(c.Request().Context(), since)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, metricsResponse{Since: since, Metrics: monitor.Aggregate(logs)})
}
