// Package generator routes a directive to the single or chained generation pathway and
// talks to the generation provider.
package generator

import (
	"context"
	"fmt"

	"inline-media-backend/internal/config"
	"inline-media-backend/internal/model"
	"inline-media-backend/internal/style"
	"inline-media-backend/pkg/logger"

	"github.com/sirupsen/logrus"
)

// Request is one generation attempt.
type Request struct {
	GenType model.GenType
	// Prompt is the style-processed prompt sent to the image stage.
	Prompt string
	// OriginalPrompt is the directive's prompt before style processing.
	OriginalPrompt string
	Dialogue       string
	CharacterName  string
	MessageID      string
	Settings       config.Settings
}

// Outcome is delivered exactly once per Dispatch.
type Outcome struct {
	URL string
	Err error
}

type Dispatcher struct {
	executor CommandExecutor
	provider Provider
	settler  Settler
	refiner  Refiner
}

// NewDispatcher wires the pathways. refiner may be nil.
func NewDispatcher(executor CommandExecutor, provider Provider, settler Settler, refiner Refiner) *Dispatcher {
	if settler == nil {
		settler = FixedDelay(0)
	}
	return &Dispatcher{executor: executor, provider: provider, settler: settler, refiner: refiner}
}

// Dispatch starts the generation and returns a channel that receives one Outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		defer close(ch)
		u, err := d.Generate(ctx, req)
		ch <- Outcome{URL: u, Err: err}
	}()
	return ch
}

// Generate runs the generation synchronously. Any error is a *GenerationError.
func (d *Dispatcher) Generate(ctx context.Context, req Request) (string, error) {
	if !req.Settings.UseChained {
		return d.legacy(ctx, req)
	}

	switch req.GenType {
	case model.GenSingle:
		u, err := d.provider.Generate(ctx, d.staticRequest(req))
		if err != nil {
			return "", stageErr(StageImage, err)
		}
		if u == "" {
			return "", stageErr(StageImage, ErrEmptyResult)
		}
		return u, nil
	case model.GenChained:
		return d.chained(ctx, req)
	default:
		return "", &GenerationError{Stage: StageDispatch, Err: fmt.Errorf("%w: %s", ErrUnknownGenType, req.GenType)}
	}
}

func (d *Dispatcher) legacy(ctx context.Context, req Request) (string, error) {
	s := req.Settings
	width, height, err := style.Dimensions(s.AspectRatio, s.BaseSize)
	if err != nil {
		return "", stageErr(StageDispatch, err)
	}

	if s.LegacyWorkflow != "" {
		if _, err := d.executor.Execute(ctx, WorkflowCommand(s.LegacyWorkflow)); err != nil {
			return "", stageErr(StageCommand, err)
		}
	}

	res, err := d.executor.Execute(ctx, ImagineCommand(width, height, req.Prompt))
	if err != nil {
		return "", stageErr(StageCommand, err)
	}
	if res == nil || res.Pipe == "" {
		return "", stageErr(StageCommand, ErrEmptyResult)
	}
	return res.Pipe, nil
}

func (d *Dispatcher) staticRequest(req Request) WorkflowRequest {
	s := req.Settings
	return WorkflowRequest{
		Workflow:      s.StaticWorkflow,
		Prompt:        req.Prompt,
		Width:         s.StaticWidth,
		Height:        s.StaticHeight,
		CharacterName: req.CharacterName,
		MessageID:     req.MessageID,
		GenType:       model.GenSingle,
	}
}

func (d *Dispatcher) chained(ctx context.Context, req Request) (string, error) {
	entry := logger.WithFields(logrus.Fields{"message_id": req.MessageID, "character": req.CharacterName})

	imageURL, err := d.provider.Generate(ctx, d.staticRequest(req))
	if err != nil {
		return "", stageErr(StageImage, err)
	}
	if imageURL == "" {
		return "", stageErr(StageImage, ErrEmptyResult)
	}
	entry.Infof("Stage 1 完成，开始生成视频")

	if err := d.settler.Settle(ctx, imageURL); err != nil {
		if ctx.Err() != nil {
			return "", stageErr(StageVideo, ctx.Err())
		}
		entry.Warnf("等待基础图片就绪失败，继续生成: %v", err)
	}

	description := req.OriginalPrompt
	if description == "" {
		description = req.Prompt
	}
	prompt := MotionPrompt(req.Dialogue, description)
	if d.refiner != nil {
		if refined, err := d.refiner.Refine(ctx, prompt); err != nil {
			entry.Warnf("视频提示词优化失败，使用原始指令: %v", err)
		} else {
			prompt = refined
		}
	}

	s := req.Settings
	videoURL, err := d.provider.Generate(ctx, WorkflowRequest{
		Workflow:      s.DynamicWorkflow,
		Prompt:        prompt,
		Width:         s.DynamicWidth,
		Height:        s.DynamicHeight,
		CharacterName: req.CharacterName,
		InputImageURL: imageURL,
		MessageID:     req.MessageID,
		GenType:       model.GenChained,
	})
	if err != nil {
		return "", stageErr(StageVideo, err)
	}
	if videoURL == "" {
		return "", stageErr(StageVideo, ErrEmptyResult)
	}
	return videoURL, nil
}

// MotionPrompt is the Stage 2 instruction: motion and camera only, no appearance.
func MotionPrompt(dialogue, description string) string {
	return fmt.Sprintf("Base on the character (the character in the image)'s dialogue:\n %q.\n"+
		"And consider the description of the input image:\n %q,\n"+
		"Generate a detailed prompt for a 5s video. The prompt must focus on the movement of the character "+
		"(include face expressions but no other description of the character's looks) "+
		"and the camera movement must fit the scene. Output only the prompt without any additional explanation.",
		dialogue, description)
}
