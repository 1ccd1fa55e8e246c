// Package resend is a client for the Resend email API.
package resend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"newsroom/internal/domain"
)

type Config struct {
	APIKey  string
	BaseURL string
	From    string
	ReplyTo string
	Timeout time.Duration
}

type Client struct {
	client  *resty.Client
	from    string
	replyTo string
	logger  zerolog.Logger
}

type sendRequest struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html,omitempty"`
	Text    string            `json:"text,omitempty"`
	ReplyTo string            `json:"reply_to,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

func New(cfg Config, logger zerolog.Logger) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetAuthToken(cfg.APIKey).
			SetHeader("Content-Type", "application/json").
			SetHeader("User-Agent", "newsroom/1.0"),
		from:    cfg.From,
		replyTo: cfg.ReplyTo,
		logger:  logger.With().Str("component", "resend").Logger(),
	}
}

// Send delivers one message and returns the provider message id.
// Errors wrap domain.ErrRecipientRejected when the provider refused this
// message, and domain.ErrProviderUnavailable when the provider could not be
// used at all (network failure, server error, throttling, bad credentials).
func (c *Client) Send(ctx context.Context, msg domain.EmailMessage) (string, error) {
	body := sendRequest{
		From:    c.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: c.replyTo,
		Headers: msg.Headers,
	}

	var (
		result  sendResponse
		failure errorResponse
	)
	req := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&failure)
	if msg.IdempotencyKey != "" {
		req.SetHeader("Idempotency-Key", msg.IdempotencyKey)
	}

	resp, err := req.Post("/emails")
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}

	code := resp.StatusCode()
	switch {
	case resp.IsSuccess():
		return result.ID, nil
	case code >= http.StatusInternalServerError,
		code == http.StatusTooManyRequests,
		code == http.StatusUnauthorized,
		code == http.StatusForbidden:
		c.logger.Warn().Int("status", code).Str("error", failure.Name).Msg("resend unavailable")
		return "", fmt.Errorf("%w: status %d: %s", domain.ErrProviderUnavailable, code, failure.Message)
	default:
		return "", fmt.Errorf("%w: status %d: %s", domain.ErrRecipientRejected, code, failure.Message)
	}
}
