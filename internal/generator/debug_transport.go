package generator

import (
	"bytes"
	"io"
	"net/http"
	"regexp"
	"strings"

	"inline-media-backend/pkg/logger"

	"github.com/sirupsen/logrus"
)

// DebugTransport logs outgoing POST bodies with credentials redacted.
type DebugTransport struct {
	base    http.RoundTripper
	enabled bool
	name    string
}

// NewDebugTransport wraps base. A nil base means http.DefaultTransport.
func NewDebugTransport(base http.RoundTripper, enabled bool, name string) *DebugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DebugTransport{base: base, enabled: enabled, name: name}
}

func (t *DebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.enabled && req.Method == http.MethodPost {
		t.logRequest(req)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil && t.enabled {
		logger.WithFields(logrus.Fields{"client": t.name, "url": req.URL.String()}).Errorf("request failed: %v", err)
	}
	return resp, err
}

func (t *DebugTransport) logRequest(req *http.Request) {
	headers := make(map[string]string, len(req.Header))
	for name, values := range req.Header {
		if isSensitiveHeader(name) {
			headers[name] = "[REDACTED]"
		} else {
			headers[name] = strings.Join(values, ", ")
		}
	}

	entry := logger.WithFields(logrus.Fields{
		"client":  t.name,
		"method":  req.Method,
		"url":     req.URL.String(),
		"headers": headers,
	})

	if req.Body == nil {
		entry.Debugf("request (no body)")
		return
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		entry.Errorf("failed to read request body: %v", err)
		return
	}
	// 恢复请求体，以免影响实际请求
	req.Body = io.NopCloser(bytes.NewReader(body))

	entry.WithField("size", len(body)).Debugf("request body: %s", redactJSON(string(body)))
}

var sensitiveField = regexp.MustCompile(`(?i)"(api_key|apikey|password|secret|token)"\s*:\s*"[^"]*"`)

func redactJSON(s string) string {
	return sensitiveField.ReplaceAllString(s, `"$1": "[REDACTED]"`)
}

func isSensitiveHeader(name string) bool {
	for _, h := range []string{"Authorization", "X-Api-Key", "X-Auth-Token", "Cookie"} {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}
