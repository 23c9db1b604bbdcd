package handler

import (
	"context"
	"net/http"
	"time"

	"inline-media-backend/internal/events"
	"inline-media-backend/internal/utils"
	"inline-media-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// EventsHandler streams bus events to clients over SSE.
type EventsHandler struct {
	bus       *events.Bus
	heartbeat time.Duration
}

func NewEventsHandler(bus *events.Bus, heartbeat time.Duration) *EventsHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &EventsHandler{bus: bus, heartbeat: heartbeat}
}

// Stream 推送事件，可用 session_id 过滤
func (h *EventsHandler) Stream(c *gin.Context) {
	sessionID := c.Query("session_id")

	ch, cancel := h.bus.Subscribe(64)
	defer cancel()

	sseWriter := utils.NewSSEWriter(c.Writer)
	ctx := c.Request.Context()

	// ✅ 心跳，防止连接因空闲而断开
	heartbeatTicker := time.NewTicker(h.heartbeat)
	defer heartbeatTicker.Stop()

	if err := sseWriter.WriteJSON("status", gin.H{"type": "connected", "timestamp": time.Now().Unix()}); err != nil {
		return
	}

	for {
		select {
		case e := <-ch:
			if sessionID != "" && e.SessionID != "" && e.SessionID != sessionID {
				continue
			}
			if err := sseWriter.WriteJSON(e.Name, e); err != nil {
				logger.Warnf("Failed to write SSE: %v", err)
				return
			}
		case <-heartbeatTicker.C:
			if err := sseWriter.WriteJSON("heartbeat", gin.H{"type": "heartbeat", "timestamp": time.Now().Unix()}); err != nil {
				logger.Warnf("心跳发送失败: %v", err)
				return
			}
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				_ = sseWriter.Close()
			}
			return
		}
	}
}

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
