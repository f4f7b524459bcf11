package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gracechapelhq/gracechapel-backend/pkg/config"
	pkgerrors "github.com/gracechapelhq/gracechapel-backend/pkg/errors"
)

const (
	defaultBaseURL             = "https://api.sendgrid.com/v3"
	errorBodyReadLimit   int64 = 1024
)

var errMailerKeyRequired = errors.New("sendgrid api key is required")

// Message is the outbound notification payload.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Sender is the notification collaborator consumed by donation flows.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Client delivers transactional mail through the SendGrid v3 API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	fromEmail  string
	fromName   string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured SendGrid base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the SendGrid client from mailer configuration.
func NewClient(cfg config.MailerConfig, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errMailerKeyRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		fromEmail:  cfg.FromEmail,
		fromName:   cfg.FromName,
		httpClient: &http.Client{Timeout: timeout},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             emailAddress      `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

type personalization struct {
	To []emailAddress `json:"to"`
}

type emailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Send delivers the message, returning a typed upstream error on failure.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient email required")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subject required")
	}

	body := sendRequest{
		Personalizations: []personalization{{To: []emailAddress{{Email: msg.To}}}},
		From:             emailAddress{Email: c.fromEmail, Name: c.fromName},
		Subject:          msg.Subject,
	}
	if msg.TextBody != "" {
		body.Content = append(body.Content, content{Type: "text/plain", Value: msg.TextBody})
	}
	if msg.HTMLBody != "" {
		body.Content = append(body.Content, content{Type: "text/html", Value: msg.HTMLBody})
	}
	if len(body.Content) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "message body required")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal mail payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mail/send", bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build mail request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "send mail")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return pkgerrors.New(pkgerrors.CodeUpstream, fmt.Sprintf("sendgrid responded %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	return nil
}
