package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Envelope what the mail API receives for one message
type Envelope struct {
	MessageID  string            `json:"message_id"`
	TemplateID TemplateID        `json:"template_id"`
	Locale     string            `json:"locale"`
	To         string            `json:"to"`
	Username   string            `json:"username"`
	Args       map[string]string `json:"args"`
}

// Sender delivers an envelope
type Sender interface {
	Send(ctx context.Context, env Envelope) error
}

type sendResponse struct {
	ID      string `json:"id"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HTTPSender posts envelopes to a templated-mail HTTP API
type HTTPSender struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewHTTPSender apiKey is sent as a bearer token when non-empty
func NewHTTPSender(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *HTTPSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &HTTPSender{httpClient: client, logger: logger}
}

func (s *HTTPSender) Send(ctx context.Context, env Envelope) error {
	var out sendResponse
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(env).
		SetResult(&out).
		SetError(&out).
		Post("/v1/messages")
	if err != nil {
		return fmt.Errorf("failed to call mail API: %w", err)
	}
	if resp.IsError() {
		reason := out.Error
		if reason == "" {
			reason = out.Message
		}
		return fmt.Errorf("mail API error: %s (status: %d)", reason, resp.StatusCode())
	}

	s.logger.Debug("Mail accepted",
		zap.String("message_id", env.MessageID),
		zap.String("provider_id", out.ID),
		zap.String("template_id", string(env.TemplateID)),
	)
	return nil
}
