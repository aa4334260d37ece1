package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"farewatch/internal/types"
)

// sendGridAPIBase is the default SendGrid API base URL.
// Overridable in tests via SendGridClientConfig.BaseURL.
const sendGridAPIBase = "https://api.sendgrid.com"

// SendGridClientConfig holds the configuration for creating a SendGridClient.
type SendGridClientConfig struct {
	APIKey      types.SecretString
	FromAddress string
	FromName    string
	BaseURL     string // Override for testing; defaults to sendGridAPIBase
	Logger      *slog.Logger
}

// SendGridClient implements EmailSender by making direct HTTP calls to the
// SendGrid v3 Mail Send API through BaseClient, so every send inherits the
// circuit breaker, retry, and error mapping behavior, and tests can drive it
// with httptest.
type SendGridClient struct {
	base        *BaseClient
	apiKey      types.SecretString
	fromAddress string
	fromName    string
	baseURL     string
	logger      *slog.Logger
}

// NewSendGridClient creates a new SendGridClient. The httpClient timeout
// bounds each individual send attempt.
func NewSendGridClient(
	httpClient *http.Client,
	cfg SendGridClientConfig,
) *SendGridClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"sendgrid",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"FareWatch/1.0",
	)

	return &SendGridClient{
		base:        base,
		apiKey:      cfg.APIKey,
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		logger:      logger,
	}
}

// NewSendGridClientWithBase creates a SendGridClient with a pre-configured
// BaseClient. This is useful for testing when you want to control the
// BaseClient configuration (e.g., disable retries).
func NewSendGridClientWithBase(
	base *BaseClient,
	cfg SendGridClientConfig,
) *SendGridClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SendGridClient{
		base:        base,
		apiKey:      cfg.APIKey,
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		logger:      logger,
	}
}

// Send transmits one rendered alert email using SendGrid's v3 Mail Send API
// and returns the provider message ID (from the X-Message-Id response header)
// on success.
//
// Error mapping:
//   - 403 Forbidden -> types.ErrCodeEmailBlocked (recipient on suppression list)
//   - 429 Too Many Requests -> handled by BaseClient (retry + ErrCodeUpstreamRateLimited)
//   - 5xx -> handled by BaseClient (retry + ErrCodeUpstreamUnavailable)
//   - Other 4xx -> types.ErrCodeUpstreamEmailProvider
func (s *SendGridClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	payload := s.buildMailPayload(input)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal SendGrid mail payload",
			err,
		)
	}

	reqURL := s.baseURL + "/v3/mail/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create SendGrid mail send request",
			err,
		)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey.Unmask())

	resp, err := s.base.Do(req)
	if err != nil {
		return "", s.wrapSendGridError(err)
	}
	defer resp.Body.Close()

	// SendGrid returns 202 Accepted on success.
	if resp.StatusCode == http.StatusAccepted {
		return resp.Header.Get("X-Message-Id"), nil
	}

	return "", s.handleSendGridError(resp)
}

// sendGridMailPayload represents the SendGrid v3 mail/send JSON request body.
// Bodies are fully rendered by the notify package before they reach this
// client, so plain content blocks are used rather than dynamic templates.
type sendGridMailPayload struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// buildMailPayload maps a domain types.SendInput to the SendGrid v3 payload.
// SendGrid requires text/plain to precede text/html in the content array.
func (s *SendGridClient) buildMailPayload(input types.SendInput) sendGridMailPayload {
	var content []sendGridContent
	if input.Text != "" {
		content = append(content, sendGridContent{Type: "text/plain", Value: input.Text})
	}
	if input.HTML != "" {
		content = append(content, sendGridContent{Type: "text/html", Value: input.HTML})
	}

	return sendGridMailPayload{
		Personalizations: []sendGridPersonalization{
			{To: []sendGridAddress{{Email: input.To}}},
		},
		From: sendGridAddress{
			Email: s.fromAddress,
			Name:  s.fromName,
		},
		Subject: input.Subject,
		Content: content,
	}
}

// sendGridErrorResponse represents the JSON error body returned by SendGrid.
type sendGridErrorResponse struct {
	Errors []sendGridErrorDetail `json:"errors"`
}

type sendGridErrorDetail struct {
	Message string `json:"message"`
	Field   string `json:"field"`
}

// handleSendGridError reads a SendGrid error response and maps it to a
// types.AppError.
func (s *SendGridClient) handleSendGridError(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("SendGrid returned status %d and response body was unreadable", resp.StatusCode),
			readErr,
		)
	}

	var sgErr sendGridErrorResponse
	errMsg := ""
	if jsonErr := json.Unmarshal(body, &sgErr); jsonErr == nil && len(sgErr.Errors) > 0 {
		errMsg = sgErr.Errors[0].Message
	} else {
		errMsg = truncate(string(body), 200)
	}

	switch {
	case resp.StatusCode == http.StatusForbidden:
		// 403: recipient is on a suppression list or sender is blocked.
		return types.NewAppError(
			types.ErrCodeEmailBlocked,
			fmt.Sprintf("SendGrid blocked delivery: %s", errMsg),
			nil,
		)
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			"SendGrid rate limit exceeded",
			nil,
		)
	case resp.StatusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("SendGrid server error: %s", errMsg),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("SendGrid error (%d): %s", resp.StatusCode, errMsg),
			nil,
		)
	}
}

// wrapSendGridError passes through AppErrors from BaseClient (breaker open,
// retries exhausted) and wraps anything else as an email provider failure.
func (s *SendGridClient) wrapSendGridError(err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamEmailProvider,
		fmt.Sprintf("SendGrid request failed: %v", err),
		err,
	)
}

// Compile-time assertion that SendGridClient satisfies EmailSender.
var _ EmailSender = (*SendGridClient)(nil)
