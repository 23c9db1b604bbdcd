package generator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"inline-media-backend/internal/config"
	"inline-media-backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls []WorkflowRequest
	fn    func(req WorkflowRequest) (string, error)
}

func (f *fakeProvider) Generate(_ context.Context, req WorkflowRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(req)
	}
	return "https://cdn.test/" + req.Workflow + ".png", nil
}

type fakeExecutor struct {
	commands []string
	pipe     string
	err      error
}

func (f *fakeExecutor) Execute(_ context.Context, command string) (*CommandResult, error) {
	f.commands = append(f.commands, command)
	if f.err != nil {
		return nil, f.err
	}
	return &CommandResult{Pipe: f.pipe}, nil
}

type fakeRefiner struct {
	out string
	err error
	in  string
}

func (f *fakeRefiner) Refine(_ context.Context, instruction string) (string, error) {
	f.in = instruction
	return f.out, f.err
}

func chainedSettings() config.Settings {
	s := config.DefaultSettings()
	s.UseChained = true
	s.StaticWorkflow = "static-wf"
	s.DynamicWorkflow = "dynamic-wf"
	return s
}

func collect(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	out, ok := <-ch
	require.True(t, ok)
	_, more := <-ch
	assert.False(t, more, "outcome delivered more than once")
	return out
}

func TestDispatchLegacyRunsImagineCommand(t *testing.T) {
	exec := &fakeExecutor{pipe: "/img/out.png"}
	s := config.DefaultSettings()
	s.AspectRatio = "16:9"
	s.LegacyWorkflow = "flux"
	d := NewDispatcher(exec, &fakeProvider{}, nil, nil)

	out := collect(t, d.Dispatch(context.Background(), Request{GenType: model.GenSingle, Prompt: `a "red" fox`, Settings: s}))
	require.NoError(t, out.Err)
	assert.Equal(t, "/img/out.png", out.URL)
	require.Len(t, exec.commands, 2)
	assert.Equal(t, "/icw flux", exec.commands[0])
	assert.Equal(t, `/imagine quiet=true width=896 height=512 "a \"red\" fox"`, exec.commands[1])
}

func TestDispatchLegacyEmptyPipeFails(t *testing.T) {
	d := NewDispatcher(&fakeExecutor{}, &fakeProvider{}, nil, nil)

	out := collect(t, d.Dispatch(context.Background(), Request{Prompt: "x", Settings: config.DefaultSettings()}))
	var ge *GenerationError
	require.True(t, errors.As(out.Err, &ge))
	assert.ErrorIs(t, out.Err, ErrEmptyResult)
	assert.Empty(t, out.URL)
}

func TestDispatchChainedSingle(t *testing.T) {
	p := &fakeProvider{}
	d := NewDispatcher(&fakeExecutor{}, p, nil, nil)

	out := collect(t, d.Dispatch(context.Background(), Request{GenType: model.GenSingle, Prompt: "cat", CharacterName: "Ann", MessageID: "m1", Settings: chainedSettings()}))
	require.NoError(t, out.Err)
	assert.Equal(t, "https://cdn.test/static-wf.png", out.URL)
	require.Len(t, p.calls, 1)
	assert.Equal(t, WorkflowRequest{
		Workflow: "static-wf", Prompt: "cat", Width: 512, Height: 768,
		CharacterName: "Ann", MessageID: "m1", GenType: model.GenSingle,
	}, p.calls[0])
}

func TestDispatchChainedRunsBothStages(t *testing.T) {
	p := &fakeProvider{fn: func(req WorkflowRequest) (string, error) {
		if req.InputImageURL != "" {
			return "https://cdn.test/out.mp4", nil
		}
		return "https://cdn.test/base.png", nil
	}}
	d := NewDispatcher(&fakeExecutor{}, p, FixedDelay(0), nil)

	out := collect(t, d.Dispatch(context.Background(), Request{
		GenType: model.GenChained, Prompt: "styled, girl", OriginalPrompt: "girl", Dialogue: "Hello!", Settings: chainedSettings(),
	}))
	require.NoError(t, out.Err)
	assert.Equal(t, "https://cdn.test/out.mp4", out.URL)

	require.Len(t, p.calls, 2)
	stage2 := p.calls[1]
	assert.Equal(t, "dynamic-wf", stage2.Workflow)
	assert.Equal(t, "https://cdn.test/base.png", stage2.InputImageURL)
	assert.Equal(t, 512, stage2.Width)
	assert.Equal(t, 512, stage2.Height)
	assert.Equal(t, model.GenChained, stage2.GenType)
	assert.Contains(t, stage2.Prompt, `"Hello!"`)
	assert.Contains(t, stage2.Prompt, `"girl"`)
}

func TestDispatchChainedStageOneFailureShortCircuits(t *testing.T) {
	p := &fakeProvider{fn: func(req WorkflowRequest) (string, error) {
		return "", errors.New("gpu on fire")
	}}
	d := NewDispatcher(&fakeExecutor{}, p, nil, nil)

	out := collect(t, d.Dispatch(context.Background(), Request{GenType: model.GenChained, Prompt: "p", Dialogue: "d", Settings: chainedSettings()}))
	var ge *GenerationError
	require.True(t, errors.As(out.Err, &ge))
	assert.Equal(t, StageImage, ge.Stage)
	assert.Len(t, p.calls, 1)
}

func TestDispatchUnknownTypeMakesNoCall(t *testing.T) {
	p := &fakeProvider{}
	exec := &fakeExecutor{pipe: "x"}
	d := NewDispatcher(exec, p, nil, nil)

	out := collect(t, d.Dispatch(context.Background(), Request{GenType: "panorama", Prompt: "p", Settings: chainedSettings()}))
	assert.ErrorIs(t, out.Err, ErrUnknownGenType)
	assert.Empty(t, p.calls)
	assert.Empty(t, exec.commands)
}

type failingSettler struct{}

func (failingSettler) Settle(context.Context, string) error { return errors.New("not ready") }

func TestDispatchChainedProceedsWhenSettleFails(t *testing.T) {
	p := &fakeProvider{}
	d := NewDispatcher(&fakeExecutor{}, p, failingSettler{}, nil)

	out := collect(t, d.Dispatch(context.Background(), Request{GenType: model.GenChained, Prompt: "p", Dialogue: "d", Settings: chainedSettings()}))
	require.NoError(t, out.Err)
	assert.Len(t, p.calls, 2)
}

func TestDispatchChainedUsesRefinerAndFallsBack(t *testing.T) {
	p := &fakeProvider{}
	r := &fakeRefiner{out: "slow pan, she smiles"}
	d := NewDispatcher(&fakeExecutor{}, p, nil, r)

	_, err := d.Generate(context.Background(), Request{GenType: model.GenChained, Prompt: "p", Dialogue: "d", Settings: chainedSettings()})
	require.NoError(t, err)
	assert.Equal(t, "slow pan, she smiles", p.calls[1].Prompt)
	assert.True(t, strings.HasPrefix(r.in, "Base on the character"))

	p.calls = nil
	r.err = errors.New("quota")
	_, err = d.Generate(context.Background(), Request{GenType: model.GenChained, Prompt: "p", Dialogue: "d", Settings: chainedSettings()})
	require.NoError(t, err)
	assert.Equal(t, MotionPrompt("d", "p"), p.calls[1].Prompt)
}
