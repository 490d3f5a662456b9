package handler

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"meteor-deploy-manager/internal/model"
	"meteor-deploy-manager/internal/pkg/logger"
)

const writeWait = 10 * time.Second

// StreamHandler relays a task's step events over a websocket, one JSON message
// per event, starting with everything recorded before the client connected.
type StreamHandler struct {
	tasks    TaskRunner
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

func NewStreamHandler(tasks TaskRunner, allowOrigins []string, logger *logger.Logger) *StreamHandler {
	return &StreamHandler{
		tasks: tasks,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowOrigins, "*") || slices.Contains(allowOrigins, origin)
			},
		},
		logger: logger,
	}
}

func (h *StreamHandler) Stream(c *gin.Context) {
	taskID := c.Param("taskId")
	replay, events, cancel, err := h.tasks.Subscribe(taskID)
	if err != nil {
		c.JSON(statusFor(err), model.ErrorResponse{Success: false, Message: err.Error()})
		return
	}
	defer cancel()

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("WebSocket upgrade failed for task %s: %v", taskID, err)
		return
	}
	defer ws.Close()

	// The client sends nothing; reading only notices when it goes away.
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	send := func(e model.StreamEvent) bool {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteJSON(e); err != nil {
			h.logger.Debugf("WebSocket write for task %s failed: %v", taskID, err)
			return false
		}
		return true
	}
	for _, e := range replay {
		if !send(e) {
			return
		}
	}
	for e := range events {
		if !send(e) {
			return
		}
	}

	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "task finished"),
		time.Now().Add(writeWait))
}
