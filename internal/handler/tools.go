package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"inline-media-backend/internal/tools"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
)

// ToolsHandler invokes the registered eino tools over HTTP.
type ToolsHandler struct {
	tools []tool.BaseTool
}

func NewToolsHandler(ts []tool.BaseTool) *ToolsHandler {
	return &ToolsHandler{tools: ts}
}

func (h *ToolsHandler) List(c *gin.Context) {
	infos := make([]*schema.ToolInfo, 0, len(h.tools))
	for _, t := range h.tools {
		info, err := t.Info(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		infos = append(infos, info)
	}
	c.JSON(http.StatusOK, gin.H{"tools": infos})
}

// Invoke runs the tool named in the path with the request body as its arguments.
func (h *ToolsHandler) Invoke(c *gin.Context) {
	ctx := c.Request.Context()
	inv, err := tools.FindInvokable(ctx, h.tools, c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}

	out, err := inv.InvokableRun(ctx, string(body))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", json.RawMessage(out))
}
