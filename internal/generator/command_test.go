package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	args, prompt := parseArgs(`quiet=true width=512 height=768 "a cat, \"smiling\""`)
	assert.Equal(t, map[string]string{"quiet": "true", "width": "512", "height": "768"}, args)
	assert.Equal(t, `a cat, "smiling"`, prompt)

	args, prompt = parseArgs(`width=64 a dog with a=b in text`)
	assert.Equal(t, "64", args["width"])
	assert.Equal(t, "a dog with a=b in text", prompt)
}

func TestLocalCommandRunnerImagine(t *testing.T) {
	p := &fakeProvider{}
	r := NewLocalCommandRunner(p)

	_, err := r.Execute(context.Background(), WorkflowCommand("flux"))
	require.NoError(t, err)
	assert.Equal(t, "flux", r.Workflow())

	res, err := r.Execute(context.Background(), ImagineCommand(896, 512, "sunset, beach"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/flux.png", res.Pipe)
	require.Len(t, p.calls, 1)
	assert.Equal(t, WorkflowRequest{Workflow: "flux", Prompt: "sunset, beach", Width: 896, Height: 512}, p.calls[0])
}

func TestLocalCommandRunnerEchoAndUnknown(t *testing.T) {
	r := NewLocalCommandRunner(&fakeProvider{})

	res, err := r.Execute(context.Background(), `/echo "Generating image..."`)
	require.NoError(t, err)
	assert.Equal(t, "Generating image...", res.Pipe)

	_, err = r.Execute(context.Background(), "/summon dragon")
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = r.Execute(context.Background(), "/imagine quiet=true")
	assert.ErrorIs(t, err, ErrEmptyResult)
}

func TestHostCommandClient(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(CommandResult{Pipe: "/user/images/a.png"})
	}))
	defer srv.Close()

	c := NewHostCommandClient(srv.URL, time.Second)
	res, err := c.Execute(context.Background(), "/imagine quiet=true \"x\"")
	require.NoError(t, err)
	assert.Equal(t, "/user/images/a.png", res.Pipe)
	assert.Equal(t, "/imagine quiet=true \"x\"", got["command"])

	_, err = NewHostCommandClient("", time.Second).Execute(context.Background(), "/echo hi")
	assert.ErrorIs(t, err, ErrNoCommandEndpoint)
}
