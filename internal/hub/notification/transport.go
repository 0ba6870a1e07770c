package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	domain "github.com/ataiva-software/vertex-sub003/internal/domain/notification"
	"github.com/ataiva-software/vertex-sub003/internal/errors"
)

// Transport sends one rendered message to one recipient.
type Transport interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, recipient, subject, body string) error

func (f TransportFunc) Send(ctx context.Context, recipient, subject, body string) error {
	return f(ctx, recipient, subject, body)
}

// SMTPConfig configures the email transport.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// smtpTransport delivers email through a plain SMTP relay.
type smtpTransport struct {
	cfg SMTPConfig
}

// NewSMTPTransport creates the email transport.
func NewSMTPTransport(cfg SMTPConfig) Transport {
	return &smtpTransport{cfg: cfg}
}

func (t *smtpTransport) Send(_ context.Context, recipient, subject, body string) error {
	if t.cfg.Host == "" {
		return errors.ConnectorFailure("email", false, fmt.Errorf("smtp relay not configured"))
	}

	addr := fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port)
	msg := strings.Join([]string{
		"From: " + t.cfg.From,
		"To: " + recipient,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	var auth smtp.Auth
	if t.cfg.Username != "" {
		auth = smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, t.cfg.From, []string{recipient}, []byte(msg)); err != nil {
		return errors.TransportFailure(addr, err)
	}
	return nil
}

// httpTransport posts a JSON message to a gateway endpoint. It backs the
// chat, sms and push channels, which differ only in endpoint and field names.
type httpTransport struct {
	name     string
	endpoint string
	token    string
	client   *http.Client
	payload  func(recipient, subject, body string) map[string]any
}

func (t *httpTransport) Send(ctx context.Context, recipient, subject, body string) error {
	raw, err := json.Marshal(t.payload(recipient, subject, body))
	if err != nil {
		return errors.Internal("encode message", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(raw))
	if err != nil {
		return errors.InvalidInput("endpoint", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.TransportFailure(t.endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 5 * time.Second
		if secs := resp.Header.Get("Retry-After"); secs != "" {
			if d, err := time.ParseDuration(secs + "s"); err == nil {
				retryAfter = d
			}
		}
		return errors.RateLimited(retryAfter)
	case resp.StatusCode >= 500:
		return errors.TransportFailure(t.endpoint, fmt.Errorf("gateway status %d", resp.StatusCode))
	default:
		return errors.ConnectorFailure(t.name, false, fmt.Errorf("gateway status %d", resp.StatusCode))
	}
}

// GatewayConfig points a channel at its HTTP gateway.
type GatewayConfig struct {
	Endpoint string
	Token    string
}

// NewChatTransport posts to a chat webhook gateway.
func NewChatTransport(cfg GatewayConfig, timeout time.Duration) Transport {
	return &httpTransport{
		name:     "chat",
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		client:   &http.Client{Timeout: timeout},
		payload: func(recipient, subject, body string) map[string]any {
			text := body
			if subject != "" {
				text = "*" + subject + "*\n" + body
			}
			return map[string]any{"channel": recipient, "text": text}
		},
	}
}

// NewSMSTransport posts to an SMS gateway.
func NewSMSTransport(cfg GatewayConfig, timeout time.Duration) Transport {
	return &httpTransport{
		name:     "sms",
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		client:   &http.Client{Timeout: timeout},
		payload: func(recipient, _, body string) map[string]any {
			return map[string]any{"to": recipient, "message": body}
		},
	}
}

// NewPushTransport posts to a push notification gateway.
func NewPushTransport(cfg GatewayConfig, timeout time.Duration) Transport {
	return &httpTransport{
		name:     "push",
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		client:   &http.Client{Timeout: timeout},
		payload: func(recipient, subject, body string) map[string]any {
			return map[string]any{"device_token": recipient, "title": subject, "body": body}
		},
	}
}

// customTransport posts directly to the recipient, which must be an absolute
// URL. Used for the custom channel.
type customTransport struct {
	client *http.Client
}

// NewCustomTransport creates the custom-channel transport.
func NewCustomTransport(timeout time.Duration) Transport {
	return &customTransport{client: &http.Client{Timeout: timeout}}
}

func (t *customTransport) Send(ctx context.Context, recipient, subject, body string) error {
	raw, err := json.Marshal(map[string]any{"subject": subject, "body": body})
	if err != nil {
		return errors.Internal("encode message", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, recipient, bytes.NewReader(raw))
	if err != nil {
		return errors.ConnectorFailure("custom", false, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.TransportFailure(recipient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return errors.TransportFailure(recipient, fmt.Errorf("status %d", resp.StatusCode))
		}
		return errors.ConnectorFailure("custom", false, fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}

// Transports maps each channel to its transport.
type Transports map[domain.Channel]Transport
