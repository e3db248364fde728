// Package webhook delivers signed JSON events over HTTP with retries.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sender posts JSON payloads to one endpoint.
type Sender struct {
	url        string
	secret     string
	client     *http.Client
	timeout    time.Duration
	maxRetries int
	backoff    Backoff
	now        func() time.Time
}

// Option configures a Sender.
type Option func(*Sender)

// WithSecret signs every delivery with secret.
func WithSecret(secret string) Option {
	return func(s *Sender) { s.secret = secret }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) {
		if c != nil {
			s.client = c
		}
	}
}

// WithTimeout bounds each attempt. Default 10s.
func WithTimeout(d time.Duration) Option {
	return func(s *Sender) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxRetries sets retries after the first attempt. Default 3.
func WithMaxRetries(n int) Option {
	return func(s *Sender) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithBackoff sets the delay strategy between attempts.
func WithBackoff(b Backoff) Option {
	return func(s *Sender) {
		if b != nil {
			s.backoff = b
		}
	}
}

// NewSender validates endpoint and returns a Sender for it.
func NewSender(endpoint string, opts ...Option) (*Sender, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, endpoint)
	}

	s := &Sender{
		url:        endpoint,
		client:     &http.Client{Timeout: 30 * time.Second},
		timeout:    10 * time.Second,
		maxRetries: 3,
		backoff:    ExponentialBackoff{Initial: time.Second, Max: 30 * time.Second, Multiplier: 2, Jitter: 0.1},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Send marshals data and posts it, retrying temporary failures.
// 4xx responses other than 408, 425 and 429 are not retried.
func (s *Sender) Send(ctx context.Context, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(lastErr, ctx.Err())
			case <-time.After(s.backoff.NextInterval(attempt)):
			}
		}

		status, err := s.attempt(ctx, payload)
		if err == nil {
			return nil
		}
		lastErr = err
		if permanent(status) {
			return fmt.Errorf("%w: %w", ErrPermanentFailure, err)
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrDeliveryFailed, s.maxRetries+1, lastErr)
}

func (s *Sender) attempt(ctx context.Context, payload []byte) (int, error) {
	actx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "equiherds-billing/1.0")
	if s.secret != "" {
		sig, err := Sign(s.secret, payload, s.now())
		if err != nil {
			return 0, err
		}
		sig.Apply(req.Header)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(actx.Err(), context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(strings.ReplaceAll(string(body), "\n", " "))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	if msg == "" {
		return resp.StatusCode, fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode, msg)
}

func permanent(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return true
}
