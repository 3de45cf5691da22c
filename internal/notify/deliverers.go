package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FahadIshaq/scanback-backend/internal/domain/tag"
)

// LogDeliverer writes events to the application log. It stands in for email
// and SMS providers in development.
type LogDeliverer struct {
	logger *slog.Logger
}

// NewLogDeliverer creates a deliverer that logs events.
func NewLogDeliverer(logger *slog.Logger) *LogDeliverer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LogDeliverer{logger: logger}
}

func (l *LogDeliverer) Name() string { return "log" }

func (l *LogDeliverer) Deliver(ctx context.Context, evt tag.Event) error {
	attrs := []any{"kind", evt.Kind, "code", evt.Code}
	if evt.Record.Owner != "" {
		attrs = append(attrs, "owner", evt.Record.Owner)
	}
	switch p := evt.Payload.(type) {
	case OTPPayload:
		attrs = append(attrs, "channel", p.Channel, "destination", p.Destination)
	case *OTPPayload:
		attrs = append(attrs, "channel", p.Channel, "destination", p.Destination)
	}
	l.logger.InfoContext(ctx, "notification", attrs...)
	return nil
}

// WebhookDeliverer posts events as JSON to a fixed URL.
type WebhookDeliverer struct {
	URL    string
	Secret string
	HTTP   *http.Client
}

// NewWebhookDeliverer creates a webhook deliverer with its own client timeout.
func NewWebhookDeliverer(rawURL, secret string, timeout time.Duration) (*WebhookDeliverer, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, fmt.Errorf("invalid webhook url: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultDeliverTimeout
	}
	return &WebhookDeliverer{
		URL:    rawURL,
		Secret: secret,
		HTTP:   &http.Client{Timeout: timeout},
	}, nil
}

func (w *WebhookDeliverer) Name() string { return "webhook" }

type webhookBody struct {
	Kind       tag.EventKind  `json:"kind"`
	Code       string         `json:"code"`
	Owner      string         `json:"owner,omitempty"`
	Contact    tag.Contact    `json:"contact"`
	Scan       *tag.ScanEvent `json:"scan,omitempty"`
	Finder     *tag.FoundInfo `json:"finder,omitempty"`
	Payload    any            `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func (w *WebhookDeliverer) Deliver(ctx context.Context, evt tag.Event) error {
	body, err := json.Marshal(webhookBody{
		Kind:       evt.Kind,
		Code:       evt.Code,
		Owner:      evt.Record.Owner,
		Contact:    evt.Record.Contact,
		Scan:       evt.Scan,
		Finder:     evt.Finder,
		Payload:    evt.Payload,
		OccurredAt: evt.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("encoding webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Secret != "" {
		req.Header.Set("Authorization", "Bearer "+w.Secret)
	}

	resp, err := w.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
