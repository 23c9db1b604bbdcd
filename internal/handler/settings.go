package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"inline-media-backend/internal/config"
	"inline-media-backend/internal/model"
	"inline-media-backend/internal/service"
	"inline-media-backend/internal/style"

	"github.com/gin-gonic/gin"
)

type SettingsHandler struct {
	settings  *config.SettingsStore
	workflows *service.WorkflowCatalog
}

func NewSettingsHandler(settings *config.SettingsStore, workflows *service.WorkflowCatalog) *SettingsHandler {
	return &SettingsHandler{settings: settings, workflows: workflows}
}

func (h *SettingsHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.Get())
}

// Update merges a partial json document into the current settings. Fields that are
// absent keep their value.
func (h *SettingsHandler) Update(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	probe := h.settings.Get()
	if err := json.Unmarshal(body, &probe); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st, err := h.settings.Update(func(s *config.Settings) {
		_ = json.Unmarshal(body, s)
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, st)
}

func (h *SettingsHandler) Styles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"styles": style.All()})
}

func (h *SettingsHandler) GetWorkflows(c *gin.Context) {
	names, err := h.workflows.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": names})
}

// AnnounceWorkflows 生成服务上报可用工作流
func (h *SettingsHandler) AnnounceWorkflows(c *gin.Context) {
	var req model.WorkflowsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": h.workflows.Announce(req.Workflows)})
}
