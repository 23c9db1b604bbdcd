package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"inline-media-backend/internal/config"
	"inline-media-backend/internal/model"
	"inline-media-backend/internal/utils"
	"inline-media-backend/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// 1x1 PNG pixel
	mockImageURL = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR4nGNgYAAAAAMAASsJTYQAAAAASUVORK5CYII="
	mockVideoURL = "https://example.com/mock_video.mp4"
)

// WorkflowRequest is one generation call against a provider workflow.
type WorkflowRequest struct {
	Workflow      string        `json:"workflow"`
	Prompt        string        `json:"prompt"`
	Width         int           `json:"width"`
	Height        int           `json:"height"`
	CharacterName string        `json:"character_name,omitempty"`
	InputImageURL string        `json:"input_image_url,omitempty"`
	MessageID     string        `json:"message_id,omitempty"`
	GenType       model.GenType `json:"gen_type,omitempty"`
}

// Provider runs a workflow and returns the resulting media url.
type Provider interface {
	Generate(ctx context.Context, req WorkflowRequest) (string, error)
}

// Client is the HTTP provider. POST /generate answers either with the media url or
// with a task id that is polled at GET /tasks/:id.
type Client struct {
	BaseURL      string
	APIKey       string
	HTTPClient   *http.Client
	Mock         bool
	PollInterval time.Duration
	PollTimeout  time.Duration

	limiter *rate.Limiter
}

func NewClient(cfg config.ProviderConfig) *Client {
	httpClient := utils.NewHTTPClient(cfg.Timeout)
	httpClient.Transport = NewDebugTransport(httpClient.Transport, cfg.DebugRequest, "provider")

	c := &Client{
		BaseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		APIKey:       cfg.APIKey,
		HTTPClient:   httpClient,
		Mock:         cfg.Mock,
		PollInterval: cfg.PollInterval,
		PollTimeout:  cfg.PollTimeout,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

type generateResponse struct {
	URL    string `json:"url"`
	TaskID string `json:"task_id"`
	Error  string `json:"error"`
}

type taskResponse struct {
	Status string `json:"status"`
	URL    string `json:"url"`
	Error  string `json:"error"`
}

func (c *Client) Generate(ctx context.Context, req WorkflowRequest) (string, error) {
	if c.Mock {
		if req.InputImageURL != "" {
			return mockVideoURL, nil
		}
		return mockImageURL, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	var resp generateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/generate", req, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrTaskFailed, resp.Error)
	}
	if resp.URL != "" {
		return resp.URL, nil
	}
	if resp.TaskID == "" {
		return "", ErrEmptyResult
	}

	logger.WithFields(logrus.Fields{
		"task_id":    resp.TaskID,
		"workflow":   req.Workflow,
		"message_id": req.MessageID,
	}).Infof("等待生成任务完成")
	return c.waitTask(ctx, resp.TaskID)
}

var errTaskPending = errors.New("task pending")

func (c *Client) waitTask(ctx context.Context, taskID string) (string, error) {
	if c.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.PollTimeout)
		defer cancel()
	}
	interval := c.PollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}

	op := func() (string, error) {
		var task taskResponse
		if err := c.doJSON(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID), nil, &task); err != nil {
			return "", err
		}
		switch strings.ToLower(task.Status) {
		case "succeeded", "success", "done":
			if task.URL == "" {
				return "", backoff.Permanent(ErrEmptyResult)
			}
			return task.URL, nil
		case "failed", "error", "cancelled":
			return "", backoff.Permanent(fmt.Errorf("%w: %s", ErrTaskFailed, task.Error))
		default:
			return "", errTaskPending
		}
	}

	return backoff.RetryWithData(op, backoff.WithContext(backoff.NewConstantBackOff(interval), ctx))
}

// Workflows lists the workflow names the provider offers.
func (c *Client) Workflows(ctx context.Context) ([]string, error) {
	if c.Mock {
		return []string{"mock-image", "mock-video"}, nil
	}
	var resp struct {
		Workflows []string `json:"workflows"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/workflows", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Workflows, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
