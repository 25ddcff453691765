package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"cropwatch/internal/models"
	"cropwatch/internal/web/middleware"
	webModels "cropwatch/internal/web/models"
)

type CompareService interface {
	LatestReadings(ctx context.Context, devEUIs []string) ([]models.LatestReading, error)
}

func RegisterCompareRoutes(r *gin.RouterGroup, mw *middleware.MiddlewareManager, svc CompareService) {
	r.GET("/compare", mw.RequireAuth(), func(c *gin.Context) {
		var req webModels.CompareRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			badRequest(c, err)
			return
		}
		readings, err := svc.LatestReadings(c.Request.Context(), req.DevEUIs)
		if err != nil {
			writeError(c, err)
			return
		}

		types := []string{}
		seen := map[string]struct{}{}
		for _, r := range readings {
			if _, ok := seen[r.Type]; !ok {
				seen[r.Type] = struct{}{}
				types = append(types, r.Type)
			}
		}
		c.JSON(http.StatusOK, gin.H{"devices": readings, "deviceTypes": types})
	})
}
