package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"inline-media-backend/internal/config"
	"inline-media-backend/internal/generator"
	"inline-media-backend/internal/model"
	"inline-media-backend/internal/style"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

type dispatcher interface {
	Dispatch(ctx context.Context, req generator.Request) <-chan generator.Outcome
}

type settingsSource interface {
	Get() config.Settings
}

// MediaGenerateTool implements tool.InvokableTool: it runs one generation outside of
// any chat message, with the current style applied.
type MediaGenerateTool struct {
	gen      dispatcher
	settings settingsSource
}

func NewMediaGenerateTool(gen dispatcher, settings settingsSource) *MediaGenerateTool {
	return &MediaGenerateTool{gen: gen, settings: settings}
}

func (t *MediaGenerateTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "media_generate",
		Desc: "根据提示词生成图片或视频。gen_type 为 single 时生成单张图片，为 chained 时先生成图片再基于对白生成视频。",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"prompt": {
				Type:     schema.String,
				Desc:     "画面描述，逗号分隔的关键词，必填参数",
				Required: true,
			},
			"gen_type": {
				Type: schema.String,
				Desc: "生成类型",
				Enum: []string{string(model.GenSingle), string(model.GenChained)},
			},
			"dialogue": {
				Type: schema.String,
				Desc: "角色台词，chained 模式下用于生成动作描述",
			},
			"character_name": {
				Type: schema.String,
				Desc: "角色名",
			},
		}),
	}, nil
}

type mediaGenerateParams struct {
	Prompt        string `json:"prompt"`
	GenType       string `json:"gen_type"`
	Dialogue      string `json:"dialogue"`
	CharacterName string `json:"character_name"`
}

func (t *MediaGenerateTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var params mediaGenerateParams
	if err := json.Unmarshal([]byte(argumentsInJSON), &params); err != nil {
		return "", fmt.Errorf("failed to parse arguments: %w", err)
	}
	if strings.TrimSpace(params.Prompt) == "" {
		return "", fmt.Errorf("prompt is required")
	}

	genType := model.GenSingle
	if params.GenType != "" {
		genType = model.ParseGenType(params.GenType)
	}

	st := t.settings.Get()
	prompt, _ := style.Apply(params.Prompt, st.Style, st.NegativePrompt)

	out := <-t.gen.Dispatch(ctx, generator.Request{
		GenType:        genType,
		Prompt:         prompt,
		OriginalPrompt: params.Prompt,
		Dialogue:       params.Dialogue,
		CharacterName:  params.CharacterName,
		Settings:       st,
	})

	result := map[string]interface{}{
		"success": out.Err == nil,
		"prompt":  prompt,
	}
	if out.Err != nil {
		result["message"] = out.Err.Error()
	} else {
		result["data"] = map[string]interface{}{
			"url":      out.URL,
			"gen_type": genType,
		}
	}

	resultBytes, _ := json.Marshal(result)
	return string(resultBytes), nil
}

// ListStylesTool implements tool.InvokableTool and lists the style catalog.
type ListStylesTool struct{}

func (t *ListStylesTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name:        "list_styles",
		Desc:        "列出可用的画面风格及其正向、负向关键词。",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
	}, nil
}

func (t *ListStylesTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	resultBytes, err := json.Marshal(map[string]interface{}{
		"success": true,
		"data":    style.All(),
	})
	if err != nil {
		return "", err
	}
	return string(resultBytes), nil
}

// GetMediaTools returns the media tools
func GetMediaTools(gen dispatcher, settings settingsSource) []tool.BaseTool {
	return []tool.BaseTool{
		NewMediaGenerateTool(gen, settings),
		&ListStylesTool{},
	}
}

// FindInvokable returns the invokable tool registered under name.
func FindInvokable(ctx context.Context, tools []tool.BaseTool, name string) (tool.InvokableTool, error) {
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, err
		}
		if info.Name != name {
			continue
		}
		if inv, ok := t.(tool.InvokableTool); ok {
			return inv, nil
		}
	}
	return nil, fmt.Errorf("tool not found: %s", name)
}
