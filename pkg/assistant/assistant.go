// Package assistant produces the replies of ai nodes.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

var ErrEmptyReply = errors.New("assistant returned an empty reply")

const DefaultTimeout = 15 * time.Second

type webhookRequest struct {
	Prompt    string            `json:"prompt"`
	Variables map[string]string `json:"variables"`
}

type webhookResponse struct {
	Reply string `json:"reply"`
}

// Webhook asks an HTTP endpoint for the reply. The endpoint receives
// {"prompt", "variables"} and answers {"reply"}.
type Webhook struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

func NewWebhook(url, token string, timeout time.Duration, logger *slog.Logger) *Webhook {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Webhook{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("module", "assistant"),
	}
}

func (w *Webhook) Reply(ctx context.Context, prompt string, variables map[string]string) (string, error) {
	body, err := json.Marshal(webhookRequest{Prompt: prompt, Variables: variables})
	if err != nil {
		return "", fmt.Errorf("failed to marshal assistant request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create assistant request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	started := time.Now()

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("assistant request failed: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			w.logger.WarnContext(ctx, "Failed to close assistant response body", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return "", fmt.Errorf("assistant returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var decoded webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode assistant response: %w", err)
	}

	reply := strings.TrimSpace(decoded.Reply)
	if reply == "" {
		return "", ErrEmptyReply
	}

	w.logger.DebugContext(ctx, "Assistant replied", "duration_ms", time.Since(started).Milliseconds())

	return reply, nil
}

// Static answers every prompt with the same text.
type Static struct {
	Text string
}

func (s Static) Reply(_ context.Context, _ string, _ map[string]string) (string, error) {
	if s.Text == "" {
		return "", ErrEmptyReply
	}

	return s.Text, nil
}
