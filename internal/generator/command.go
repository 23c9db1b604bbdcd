package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"inline-media-backend/internal/utils"
	"inline-media-backend/pkg/logger"

	"github.com/sirupsen/logrus"
)

// CommandResult carries the output of a slash command. For /imagine, Pipe is the url.
type CommandResult struct {
	Pipe string `json:"pipe"`
}

// CommandExecutor runs host slash commands such as `/imagine quiet=true "a cat"`.
type CommandExecutor interface {
	Execute(ctx context.Context, command string) (*CommandResult, error)
}

// ImagineCommand renders the /imagine invocation for prompt.
func ImagineCommand(width, height int, prompt string) string {
	return fmt.Sprintf("/imagine quiet=true width=%d height=%d %s", width, height, strconv.Quote(prompt))
}

// WorkflowCommand renders the /icw invocation selecting workflow.
func WorkflowCommand(workflow string) string {
	return "/icw " + workflow
}

// LocalCommandRunner interprets /imagine, /icw and /echo in-process against a Provider.
type LocalCommandRunner struct {
	provider Provider

	mu       sync.Mutex
	workflow string
}

func NewLocalCommandRunner(provider Provider) *LocalCommandRunner {
	return &LocalCommandRunner{provider: provider}
}

// Workflow is the workflow the last /icw selected.
func (r *LocalCommandRunner) Workflow() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.workflow
}

func (r *LocalCommandRunner) Execute(ctx context.Context, command string) (*CommandResult, error) {
	name, rest, _ := strings.Cut(strings.TrimSpace(command), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "/icw":
		r.mu.Lock()
		r.workflow = rest
		r.mu.Unlock()
		return &CommandResult{Pipe: rest}, nil
	case "/echo":
		return &CommandResult{Pipe: unquote(rest)}, nil
	case "/imagine", "/sd":
		args, prompt := parseArgs(rest)
		req := WorkflowRequest{Workflow: r.Workflow(), Prompt: prompt}
		req.Width, _ = strconv.Atoi(args["width"])
		req.Height, _ = strconv.Atoi(args["height"])
		if prompt == "" {
			return nil, fmt.Errorf("%w: empty prompt", ErrEmptyResult)
		}

		u, err := r.provider.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		if args["quiet"] != "true" {
			logger.WithFields(logrus.Fields{"workflow": req.Workflow}).Infof("图片生成完成: %s", u)
		}
		return &CommandResult{Pipe: u}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
}

// parseArgs splits `k=v k2=v2 "free text"` into named args and the free text.
func parseArgs(s string) (map[string]string, string) {
	args := make(map[string]string)
	var free []string

	for s = strings.TrimSpace(s); s != ""; s = strings.TrimSpace(s) {
		if s[0] == '"' {
			quoted, err := strconv.QuotedPrefix(s)
			if err != nil {
				free = append(free, strings.Trim(s, `"`))
				break
			}
			text, _ := strconv.Unquote(quoted)
			free = append(free, text)
			s = s[len(quoted):]
			continue
		}

		tok, tail, _ := strings.Cut(s, " ")
		s = tail
		if k, v, ok := strings.Cut(tok, "="); ok && len(free) == 0 && isArgName(k) {
			args[strings.ToLower(k)] = v
			continue
		}
		free = append(free, tok)
	}
	return args, strings.Join(free, " ")
}

func isArgName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '_') {
			return false
		}
	}
	return true
}

func unquote(s string) string {
	if u, err := strconv.Unquote(s); err == nil {
		return u
	}
	return s
}

// HostCommandClient forwards commands to a host slash-command endpoint.
type HostCommandClient struct {
	Endpoint   string
	HTTPClient *http.Client
}

func NewHostCommandClient(endpoint string, timeout time.Duration) *HostCommandClient {
	return &HostCommandClient{Endpoint: endpoint, HTTPClient: utils.NewHTTPClient(timeout)}
}

func (h *HostCommandClient) Execute(ctx context.Context, command string) (*CommandResult, error) {
	if h.Endpoint == "" {
		return nil, ErrNoCommandEndpoint
	}

	data, err := json.Marshal(map[string]string{"command": command})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result CommandResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}
