package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// WebhookSink POSTs notifications as JSON. 5xx responses and transport
// errors are retried with exponential backoff; 4xx responses are not.
type WebhookSink struct {
	URL        string
	HTTPClient *http.Client

	// NewBackOff builds the retry policy for one delivery.
	NewBackOff func() backoff.BackOff
}

// NewWebhookSink returns a sink posting to url.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		URL:        url,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		NewBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
	}
}

// Name implements Sink.
func (s *WebhookSink) Name() string { return "webhook:" + s.URL }

// Notify implements Sink.
func (s *WebhookSink) Notify(ctx context.Context, n Notification) error {
	body, err := encode(n)
	if err != nil {
		return err
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "tenet-notifier")
		req.Header.Set("X-Tenet-Event", string(n.Type))

		resp, err := s.HTTPClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("webhook returned %s", resp.Status)
		default:
			return backoff.Permanent(fmt.Errorf("webhook returned %s", resp.Status))
		}
	}

	return backoff.Retry(op, backoff.WithContext(s.NewBackOff(), ctx))
}
