package generator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"inline-media-backend/internal/utils"

	"github.com/cenkalti/backoff/v4"
)

// Settler waits until a freshly produced Stage 1 artifact can be consumed by Stage 2.
type Settler interface {
	Settle(ctx context.Context, mediaURL string) error
}

// FixedDelay waits a constant duration.
type FixedDelay time.Duration

func (d FixedDelay) Settle(ctx context.Context, _ string) error {
	return Sleep(ctx, time.Duration(d))
}

// Sleep waits d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// HTTPProbe polls the url with HEAD until it answers 2xx, backing off exponentially.
// Urls that are not http(s), such as data urls, fall back to Fallback.
type HTTPProbe struct {
	Client     *http.Client
	Fallback   time.Duration
	MaxElapsed time.Duration
}

func NewHTTPProbe(fallback, maxElapsed time.Duration) *HTTPProbe {
	return &HTTPProbe{
		Client:     utils.NewHTTPClient(10 * time.Second),
		Fallback:   fallback,
		MaxElapsed: maxElapsed,
	}
}

func (p *HTTPProbe) Settle(ctx context.Context, mediaURL string) error {
	if !strings.HasPrefix(mediaURL, "http://") && !strings.HasPrefix(mediaURL, "https://") {
		return Sleep(ctx, p.Fallback)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = p.MaxElapsed
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = 30 * time.Second
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, mediaURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := p.Client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("media not ready: status %d", resp.StatusCode)
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}
