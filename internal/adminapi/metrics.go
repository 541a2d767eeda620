package adminapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/labstack/echo/v4"

	"github.com/wappzakelijk/console/internal/webserver"
	"github.com/wappzakelijk/console/pkg/metrics"
)

// registerMetricsRoutes registers runtime metrics routes
func registerMetricsRoutes() {
	webserver.ApiGET("/metrics/:name", queryMetric)
}

func queryMetric(c echo.Context) error {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Missing metric name", nil)
	}

	end := time.Now()
	start := end.Add(-time.Hour)
	if v := strings.TrimSpace(c.QueryParam("start")); v != "" {
		t, err := dateparse.ParseAny(v)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_DATE", "Unable to parse start parameter", nil)
		}
		start = t
	}
	if v := strings.TrimSpace(c.QueryParam("end")); v != "" {
		t, err := dateparse.ParseAny(v)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_DATE", "Unable to parse end parameter", nil)
		}
		end = t
	}

	points, err := metrics.Select(name, start.Unix(), end.Unix())
	if err != nil {
		return fail(c, http.StatusInternalServerError, "METRICS_ERROR", "Failed to query metric", err.Error())
	}

	return ok(c, map[string]interface{}{"name": name, "points": points})
}
