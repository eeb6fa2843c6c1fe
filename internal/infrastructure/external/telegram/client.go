// Package telegram is a minimal Telegram Bot API client used to deliver
// attendance warnings to a chat.
package telegram

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

	"github.com/attendify/attendify/pkg/retry"
)

const defaultBaseURL = "https://api.telegram.org"

// ClientConfig contains configuration for the Telegram client.
type ClientConfig struct {
	Token string

	// BaseURL defaults to https://api.telegram.org.
	BaseURL string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// RetryAttempts is the total number of attempts per message.
	RetryAttempts int

	// RetryDelay is the first backoff delay.
	RetryDelay time.Duration

	Logger *slog.Logger

	// Debug logs every API call.
	Debug bool
}

// DefaultClientConfig returns the settings used in production.
func DefaultClientConfig(token string) ClientConfig {
	return ClientConfig{
		Token:         token,
		BaseURL:       defaultBaseURL,
		Timeout:       15 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}
}

// Message is the part of a sent message the service reads back.
type Message struct {
	MessageID int64 `json:"message_id"`
	Date      int64 `json:"date"`
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client sends plain text messages through the Bot API.
type Client struct {
	endpoint   string
	debug      bool
	httpClient *http.Client
	retrier    *retry.Retrier
	logger     *slog.Logger
}

// NewClient creates a client. Unset fields fall back to DefaultClientConfig.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	logger := config.Logger.With("component", "telegram")
	retrier := retry.TelegramRetrier(config.RetryAttempts, config.RetryDelay,
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			logger.Warn("retrying telegram call", "attempt", attempt, "delay", delay, "error", err)
		}),
	)

	return &Client{
		endpoint:   strings.TrimRight(config.BaseURL, "/") + "/bot" + config.Token + "/",
		debug:      config.Debug,
		httpClient: &http.Client{Timeout: config.Timeout},
		retrier:    retrier,
		logger:     logger,
	}
}

// SendText sends text to chatID, retrying rate limits and server errors.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) (*Message, error) {
	req := sendMessageRequest{ChatID: chatID, Text: text}

	msg, err := retry.DoWithData(ctx, c.retrier, func(ctx context.Context) (*Message, error) {
		var msg Message
		err := c.call(ctx, "sendMessage", req, &msg)
		if err == nil {
			return &msg, nil
		}
		return nil, retryable(err)
	})
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return msg, nil
}

func (c *Client) call(ctx context.Context, method string, body, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+method, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.debug {
		c.logger.Debug("telegram api call", "method", method)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !parsed.OK {
		apiErr := &APIError{Code: parsed.ErrorCode, Description: parsed.Description}
		if parsed.Parameters != nil {
			apiErr.RetryAfter = parsed.Parameters.RetryAfter
		}
		return apiErr
	}

	if result != nil && len(parsed.Result) > 0 {
		if err := json.Unmarshal(parsed.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is an error answer of the Bot API.
type APIError struct {
	Code        int
	Description string

	// RetryAfter is the server-requested wait in seconds on 429 answers.
	RetryAfter int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// retryable marks err for another attempt when one may succeed.
func retryable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.RetryAfter > 0:
			return retry.RetryableAfter(err, time.Duration(apiErr.RetryAfter)*time.Second)
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			return retry.Retryable(err)
		default:
			return err
		}
	}

	// Transport failures: the request may not have reached the server.
	return retry.Retryable(err)
}

// IsChatUnavailable reports errors meaning the bot cannot write to the chat.
func IsChatUnavailable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == http.StatusForbidden {
		return true
	}
	return apiErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Description), "chat not found")
}
