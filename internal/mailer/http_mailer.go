package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// sendRequest is the JSON body posted to the email provider.
type sendRequest struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	BodyText string `json:"bodyText"`
	BodyHTML string `json:"bodyHtml,omitempty"`
}

// sendResponse maps the provider's 202 Accepted response body.
type sendResponse struct {
	MessageID string `json:"messageId"`
}

// errorResponse maps a 4xx rejection body.
type errorResponse struct {
	Message string `json:"message"`
}

// HTTPMailer delivers email through an SES-shaped HTTP endpoint.
// The base URL is injected from config so tests can point to a local mock.
type HTTPMailer struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPMailer(baseURL string, timeout time.Duration) *HTTPMailer {
	return &HTTPMailer{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send posts the email and expects 202 Accepted with a messageId.
// A 4xx response is a permanent rejection; 5xx and transport errors are
// transient and the caller may retry.
func (m *HTTPMailer) Send(ctx context.Context, email OutboundEmail) (SendResult, error) {
	body, err := json.Marshal(sendRequest{
		To:       email.To,
		Subject:  email.Subject,
		BodyText: email.BodyText,
		BodyHTML: email.BodyHTML,
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return SendResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted:
		var sr sendResponse
		if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
			return SendResult{}, fmt.Errorf("decode send response: %w", err)
		}
		return SendResult{MessageID: sr.MessageID}, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var er errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&er)
		if er.Message == "" {
			er.Message = fmt.Sprintf("provider rejected with status %d", resp.StatusCode)
		}
		return SendResult{}, &PermanentError{Reason: er.Message}

	default:
		return SendResult{}, fmt.Errorf("provider status %d", resp.StatusCode)
	}
}

var _ Mailer = (*HTTPMailer)(nil)
