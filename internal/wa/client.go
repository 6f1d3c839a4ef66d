package wa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client talks to the external WhatsApp gateway process (the one holding the
// socket). Replies are POSTed to {baseURL}/send as {"to": jid, "message": text}.
type Client struct {
	baseURL   string
	http      *http.Client
	attempts  int
	baseDelay time.Duration
	logger    zerolog.Logger
}

// ClientOptions tunes the delivery retry policy. Attempts is the total number
// of tries; the delay before retry n is BaseDelay * n (linear backoff).
type ClientOptions struct {
	Attempts  int
	BaseDelay time.Duration
	Timeout   time.Duration
}

func NewClient(baseURL string, opts ClientOptions, logger zerolog.Logger) *Client {
	if opts.Attempts < 1 {
		opts.Attempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: opts.Timeout},
		attempts:  opts.Attempts,
		baseDelay: opts.BaseDelay,
		logger:    logger,
	}
}

type sendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type sendResponse struct {
	MessageID string `json:"messageId"`
}

// SendText delivers one text message, retrying transient failures with linear
// backoff. It returns the provider message id when the gateway reports one.
func (c *Client) SendText(ctx context.Context, to, text string) (string, error) {
	jid, err := EnsureJID(to)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(sendRequest{To: jid, Message: text})
	if err != nil {
		return "", fmt.Errorf("marshal send request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			delay := c.baseDelay * time.Duration(attempt-1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		messageID, err := c.post(ctx, body)
		if err == nil {
			return messageID, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.logger.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", c.attempts).
			Msg("whatsapp send attempt failed")
	}

	c.logger.Error().Err(lastErr).
		Int("attempts", c.attempts).
		Msg("whatsapp send exhausted retries")
	return "", fmt.Errorf("send whatsapp message after %d attempts: %w", c.attempts, lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("gateway returned %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed sendResponse
	if len(payload) > 0 {
		// The gateway response body is informational; a missing or malformed
		// message id is not a delivery failure.
		_ = json.Unmarshal(payload, &parsed)
	}
	return parsed.MessageID, nil
}
