package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"inline-media-backend/internal/config"
	"inline-media-backend/internal/utils"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const defaultQwenBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

const refinerSystemPrompt = "You write prompts for an image-to-video model. " +
	"Answer with the prompt only, in English, as one paragraph."

// Refiner rewrites a motion instruction into a final video prompt.
type Refiner interface {
	Refine(ctx context.Context, instruction string) (string, error)
}

type chatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.Message, error)
}

// PromptRefiner asks a chat model to turn the instruction into a prompt.
type PromptRefiner struct {
	model chatModel
}

func NewPromptRefiner(m chatModel) *PromptRefiner {
	return &PromptRefiner{model: m}
}

// NewRefiner builds the refiner named by cfg.Provider. It returns nil, nil when
// refinement is disabled.
func NewRefiner(ctx context.Context, cfg config.RefinerConfig) (*PromptRefiner, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "ark", "doubao":
		m, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			Temperature: &cfg.Temperature,
			Timeout:     &cfg.Timeout,
			CustomHeader: map[string]string{
				"X-Ark-Thinking-Mode": "disable",
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create ark refiner: %w", err)
		}
		return NewPromptRefiner(m), nil
	case "qwen":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultQwenBaseURL
		}
		m, err := qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
			BaseURL:     baseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: &cfg.Temperature,
			Timeout:     cfg.Timeout,
			HTTPClient: &http.Client{
				Transport: NewDebugTransport(utils.NewTransport(), true, "qwen"),
				Timeout:   cfg.Timeout,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create qwen refiner: %w", err)
		}
		return NewPromptRefiner(m), nil
	case "openai":
		return NewPromptRefiner(newOpenAIChatModel(cfg)), nil
	default:
		return nil, fmt.Errorf("unsupported refiner provider: %s", cfg.Provider)
	}
}

func (r *PromptRefiner) Refine(ctx context.Context, instruction string) (string, error) {
	out, err := r.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(refinerSystemPrompt),
		schema.UserMessage(instruction),
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(out.Content)
	if text == "" {
		return "", errors.New("refiner returned empty prompt")
	}
	return text, nil
}
