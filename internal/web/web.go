package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cropwatch/auth"
	"cropwatch/internal/realtime"
	"cropwatch/internal/web/api"
	"cropwatch/internal/web/middleware"
)

// Dependencies are the services the HTTP layer exposes.
type Dependencies struct {
	Auth      *auth.AuthModule
	Dashboard api.DashboardService
	History   api.HistoryService
	Compare   api.CompareService
	Feed      api.ChangeFeed
	Scope     realtime.ScopeChecker
	Health    map[string]api.Pinger
}

type WebServer struct {
	router *gin.Engine
	logger *zap.Logger
}

func NewWebServer(deps Dependencies, logger *zap.Logger) *WebServer {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	middlewareManager := middleware.NewMiddlewareManager(deps.Auth, logger.Named("http"))
	router.Use(gin.Recovery(), middlewareManager.RequestLogger())

	api.RegisterHealthRoutes(router, deps.Health)

	group := router.Group("/api")
	api.RegisterDeviceRoutes(group, middlewareManager, deps.Dashboard, deps.History)
	api.RegisterCompareRoutes(group, middlewareManager, deps.Compare)
	if deps.Feed != nil && deps.Scope != nil {
		api.RegisterRealtimeRoutes(group, middlewareManager, deps.Feed, deps.Dashboard, deps.Scope, logger.Named("websocket"))
	}

	return &WebServer{router: router, logger: logger}
}

func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Server returns an http.Server on the given port so the caller controls
// shutdown.
func (ws *WebServer) Server(port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           ws.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
