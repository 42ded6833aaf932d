package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

// WhatsAppSender delivers one text message to one phone number.
// Implementations can be swapped (Cloud API, log-only) without changing
// callers.
type WhatsAppSender interface {
	SendText(ctx context.Context, to, body string) error
}

const (
	defaultWhatsAppTimeout = 10 * time.Second
	maxSendAttempts        = 3
	retryBaseDelay         = 500 * time.Millisecond
)

// WhatsAppConfig holds WhatsApp Business Cloud API credentials.
type WhatsAppConfig struct {
	// BaseURL is the Graph API root, e.g. "https://graph.facebook.com/v17.0".
	BaseURL       string
	PhoneNumberID string
	AccessToken   string
}

// CloudSender posts text messages to the WhatsApp Business Cloud API.
type CloudSender struct {
	httpClient    *http.Client
	baseURL       string
	phoneNumberID string
	accessToken   string
	logger        *logging.Logger
}

// NewCloudSender creates a WhatsApp Cloud API sender. Returns nil when
// credentials are missing, matching how callers probe for configuration.
func NewCloudSender(cfg WhatsAppConfig, logger *logging.Logger) *CloudSender {
	if cfg.AccessToken == "" || cfg.PhoneNumberID == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CloudSender{
		httpClient: &http.Client{
			Timeout: defaultWhatsAppTimeout,
		},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		phoneNumberID: cfg.PhoneNumberID,
		accessToken:   cfg.AccessToken,
		logger:        logger,
	}
}

type cloudTextRequest struct {
	MessagingProduct string        `json:"messaging_product"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             cloudTextBody `json:"text"`
}

type cloudTextBody struct {
	Body string `json:"body"`
}

type cloudSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendText sends a plain text WhatsApp message. Server errors are retried
// with backoff; client errors fail immediately.
func (s *CloudSender) SendText(ctx context.Context, to, body string) error {
	if s == nil || s.httpClient == nil {
		return fmt.Errorf("notify: whatsapp sender not configured")
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("notify: whatsapp recipient required")
	}

	payload, err := json.Marshal(cloudTextRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             cloudTextBody{Body: body},
	})
	if err != nil {
		return fmt.Errorf("notify: marshal whatsapp message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", s.baseURL, s.phoneNumberID)

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		if attempt > 1 {
			delay := retryBaseDelay * time.Duration(1<<(attempt-2))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		retryable, err := s.post(ctx, endpoint, payload, to)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
		s.logger.Warn("whatsapp send failed, retrying", "to", to, "attempt", attempt, "error", err)
	}
	return lastErr
}

// post performs one API call. The bool reports whether the failure is
// worth retrying.
func (s *CloudSender) post(ctx context.Context, endpoint string, payload []byte, to string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("notify: create whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("notify: whatsapp request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, fmt.Errorf("notify: read whatsapp response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return true, fmt.Errorf("notify: whatsapp status %d: %s", resp.StatusCode, truncate(string(respBody), 300))
	}
	if resp.StatusCode >= 400 {
		return false, fmt.Errorf("notify: whatsapp status %d: %s", resp.StatusCode, truncate(string(respBody), 300))
	}

	var out cloudSendResponse
	messageID := ""
	if err := json.Unmarshal(respBody, &out); err == nil && len(out.Messages) > 0 {
		messageID = out.Messages[0].ID
	}

	s.logger.Info("whatsapp message sent", "to", to, "message_id", messageID)
	return false, nil
}

// LogSender logs messages instead of sending them. Used in development
// and whenever the Cloud API is not configured.
type LogSender struct {
	logger *logging.Logger
}

// NewLogSender creates a log-only WhatsApp sender.
func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

// SendText logs the message and reports success.
func (s *LogSender) SendText(ctx context.Context, to, body string) error {
	s.logger.Info("log whatsapp sender: would send message", "to", to, "body", truncate(body, 120))
	return nil
}

var (
	_ WhatsAppSender = (*CloudSender)(nil)
	_ WhatsAppSender = (*LogSender)(nil)
)

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
