package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"inline-media-backend/internal/config"
	"inline-media-backend/pkg/logger"

	einoMcp "github.com/cloudwego/eino-ext/components/tool/mcp"
	"github.com/cloudwego/eino/components/tool"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// LoadMCPTools starts the configured stdio MCP server and wraps its tools. A disabled
// config returns no tools and no error.
func LoadMCPTools(ctx context.Context, cfg config.MCPConfig) ([]tool.BaseTool, error) {
	if !cfg.Enabled || cfg.Command == "" {
		return nil, nil
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// stdio客户端创建后自动启动
	cli, err := client.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "inline-media-backend",
		Version: "1.0.0",
	}
	if _, err := cli.Initialize(ctx, initRequest); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("failed to initialize MCP connection: %w", err)
	}

	mcpTools, err := einoMcp.GetTools(ctx, &einoMcp.Config{
		Cli:                   cli,
		ToolCallResultHandler: MCPResultHandler,
	})
	if err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("failed to get MCP tools: %w", err)
	}

	logger.Infof("MCP 工具加载成功: %s, 共 %d 个", cfg.Command, len(mcpTools))
	return mcpTools, nil
}

// MCPResultHandler rewrites a failed MCP call into the same json shape the local tools
// return, so callers never see IsError.
func MCPResultHandler(ctx context.Context, name string, result *mcp.CallToolResult) (*mcp.CallToolResult, error) {
	if result == nil || !result.IsError {
		return result, nil
	}

	logger.Warnf("MCP工具 '%s' 执行失败，转换为错误结果", name)

	out, _ := json.Marshal(map[string]interface{}{
		"success": false,
		"message": mcpErrorMessage(result),
		"tool":    name,
	})

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Type: "text",
				Text: string(out),
			},
		},
		IsError: false,
	}, nil
}

func mcpErrorMessage(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		switch c := content.(type) {
		case *mcp.TextContent:
			if c.Text != "" {
				parts = append(parts, c.Text)
			}
		case mcp.TextContent:
			if c.Text != "" {
				parts = append(parts, c.Text)
			}
		}
	}
	if len(parts) == 0 {
		return "MCP工具执行失败"
	}
	return strings.Join(parts, "\n")
}
