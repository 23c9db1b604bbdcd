package handler

import (
	"net/http"

	"inline-media-backend/internal/service"
	"inline-media-backend/internal/viewer"

	"github.com/gin-gonic/gin"
)

// MediaHandler exposes the container controls of a generated record.
type MediaHandler struct {
	media *service.MediaService
}

func NewMediaHandler(media *service.MediaService) *MediaHandler {
	return &MediaHandler{media: media}
}

func (h *MediaHandler) setHidden(c *gin.Context, hidden bool) {
	rec, err := h.media.SetHidden(c.Param("session_id"), c.Param("message_id"), c.Param("record_id"), hidden)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Hide 隐藏图片
func (h *MediaHandler) Hide(c *gin.Context) { h.setHidden(c, true) }

// Show 显示已隐藏的图片
func (h *MediaHandler) Show(c *gin.Context) { h.setHidden(c, false) }

// Regenerate 重新生成图片。请求立即返回，结果通过事件流推送
func (h *MediaHandler) Regenerate(c *gin.Context) {
	sessionID, messageID, recordID := c.Param("session_id"), c.Param("message_id"), c.Param("record_id")

	done, err := h.media.Regenerate(sessionID, messageID, recordID)
	if err != nil {
		respondError(c, err)
		return
	}

	if c.Query("wait") == "true" {
		select {
		case err := <-done:
			if err != nil {
				respondError(c, err)
				return
			}
			rec, err := h.media.Record(sessionID, messageID, recordID)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, rec)
		case <-c.Request.Context().Done():
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Regeneration started", "record_id": recordID})
}

// GetRecord 返回媒体记录（含提示词）
func (h *MediaHandler) GetRecord(c *gin.Context) {
	rec, err := h.media.Record(c.Param("session_id"), c.Param("message_id"), c.Param("record_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *MediaHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.media.State(c.Param("session_id"), c.Param("message_id")))
}

// Fullscreen 打开全屏查看器
func (h *MediaHandler) Fullscreen(c *gin.Context) {
	st, err := h.media.OpenViewer(c.Param("session_id"), c.Param("message_id"), c.Param("record_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *MediaHandler) ViewerState(c *gin.Context) {
	c.JSON(http.StatusOK, h.media.Viewer().State())
}

// ViewerAction handles zoom-in, zoom-out, reset and close.
func (h *MediaHandler) ViewerAction(c *gin.Context) {
	v := h.media.Viewer()

	var (
		st  viewer.State
		err error
	)
	switch c.Param("action") {
	case "zoom-in":
		st, err = v.ZoomIn()
	case "zoom-out":
		st, err = v.ZoomOut()
	case "reset":
		st, err = v.Reset()
	case "close":
		v.Close()
		st = v.State()
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown viewer action: " + c.Param("action")})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
