package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cropwatch/internal/dashboard"
	"cropwatch/internal/history"
	"cropwatch/internal/models"
	"cropwatch/internal/web/middleware"
	webModels "cropwatch/internal/web/models"
)

type DashboardService interface {
	FetchPage(ctx context.Context, req dashboard.PageRequest) (dashboard.Page, error)
	LoadInitialAppState(ctx context.Context, loggedIn bool) (models.AppState, error)
}

type HistoryService interface {
	FetchDeviceHistory(ctx context.Context, q history.Query) (models.Device, error)
	FetchMetricSeries(ctx context.Context, q history.SeriesQuery) (history.Series, error)
}

func RegisterDeviceRoutes(r *gin.RouterGroup, mw *middleware.MiddlewareManager, dash DashboardService, hist HistoryService) {
	r.GET("/app-state", mw.OptionalAuth(), func(c *gin.Context) {
		state, err := dash.LoadInitialAppState(c.Request.Context(), middleware.IsLoggedIn(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, state)
	})

	devices := r.Group("/devices")
	devices.Use(mw.RequireAuth())
	{
		devices.GET("", func(c *gin.Context) {
			var req webModels.PageRequest
			if err := c.ShouldBindQuery(&req); err != nil {
				badRequest(c, err)
				return
			}
			pr := dashboard.PageRequest{Limit: req.Limit, LocationID: req.LocationID}
			if req.Cursor != "" {
				pr.Cursor = &req.Cursor
			}
			page, err := dash.FetchPage(c.Request.Context(), pr)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, page)
		})

		devices.GET("/:dev_eui/history", func(c *gin.Context) {
			var req webModels.HistoryRequest
			if err := c.ShouldBindQuery(&req); err != nil {
				badRequest(c, err)
				return
			}
			start, end, err := parseWindow(req)
			if err != nil {
				badRequest(c, err)
				return
			}
			d, err := hist.FetchDeviceHistory(c.Request.Context(), history.Query{
				DevEUI:    c.Param("dev_eui"),
				Start:     start,
				End:       end,
				HoursBack: req.Hours,
				Limit:     req.Limit,
			})
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, d)
		})

		devices.GET("/:dev_eui/history/:metric", func(c *gin.Context) {
			var req webModels.HistoryRequest
			if err := c.ShouldBindQuery(&req); err != nil {
				badRequest(c, err)
				return
			}
			start, end, err := parseWindow(req)
			if err != nil {
				badRequest(c, err)
				return
			}
			metric, err := history.ParseMetric(c.Param("metric"))
			if err != nil {
				writeError(c, err)
				return
			}
			series, err := hist.FetchMetricSeries(c.Request.Context(), history.SeriesQuery{
				DevEUI: c.Param("dev_eui"),
				Metric: metric,
				Start:  start,
				End:    end,
				Limit:  req.Limit,
			})
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, series)
		})
	}
}

func parseWindow(req webModels.HistoryRequest) (start, end *time.Time, err error) {
	if start, err = parseTime(req.Start); err != nil {
		return nil, nil, fmt.Errorf("start: %w", err)
	}
	if end, err = parseTime(req.End); err != nil {
		return nil, nil, fmt.Errorf("end: %w", err)
	}
	return start, end, nil
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
