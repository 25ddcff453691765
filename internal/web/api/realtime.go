package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cropwatch/internal/dashboard"
	"cropwatch/internal/models"
	"cropwatch/internal/realtime"
	"cropwatch/internal/web/middleware"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	subscriberSize = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ChangeFeed is the part of the live merge a websocket client reads from.
type ChangeFeed interface {
	Subscribe(buffer int) (<-chan realtime.Change, func())
}

type streamMessage struct {
	Type    string           `json:"type"`
	Devices []models.Device  `json:"devices,omitempty"`
	Change  *realtime.Change `json:"change,omitempty"`
}

// RegisterRealtimeRoutes streams a per-connection collection: one snapshot
// of the caller's first page, then one message per change to a device the
// caller can see. Lookups run with the caller's claims.
func RegisterRealtimeRoutes(r *gin.RouterGroup, mw *middleware.MiddlewareManager, feed ChangeFeed, dash DashboardService, scope realtime.ScopeChecker, logger *zap.Logger) {
	r.GET("/realtime", mw.RequireAuth(), func(c *gin.Context) {
		ctx := c.Request.Context()

		// Subscribe before loading so no change between the two is missed.
		changes, unsubscribe := feed.Subscribe(subscriberSize)
		defer unsubscribe()

		page, err := dash.FetchPage(ctx, dashboard.PageRequest{Limit: dashboard.InitialPageLimit})
		if err != nil {
			writeError(c, err)
			return
		}
		session := realtime.NewSession(page.Devices, scope)

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		defer ws.Close()

		if err := writeJSON(ws, streamMessage{Type: "snapshot", Devices: session.Collection().Snapshot()}); err != nil {
			return
		}

		closed := make(chan struct{})
		go readPump(ws, closed)

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case ch, ok := <-changes:
				if !ok {
					return
				}
				local, visible, err := session.Accept(ctx, ch)
				if err != nil {
					logger.Warn("device scope check failed", zap.String("dev_eui", ch.Device.ID), zap.Error(err))
					continue
				}
				if !visible {
					continue
				}
				if err := writeJSON(ws, streamMessage{Type: "change", Change: &local}); err != nil {
					logger.Debug("websocket write failed", zap.Error(err))
					return
				}
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-closed:
				return
			case <-ctx.Done():
				return
			}
		}
	})
}

// readPump drains client frames so pongs and close frames are processed.
func readPump(ws *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(ws *websocket.Conn, v any) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(v)
}
