package webhook_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdprince200-netizen/equiherds/pkg/webhook"
)

type event struct {
	Type      string `json:"type"`
	AccountID string `json:"account_id"`
}

func TestNewSender_InvalidURL(t *testing.T) {
	t.Parallel()

	for _, u := range []string{"", "ftp://example.com/hook", "http://", "://bad"} {
		_, err := webhook.NewSender(u)
		assert.ErrorIs(t, err, webhook.ErrInvalidURL, u)
	}
}

func TestSender_DeliversSignedPayload(t *testing.T) {
	t.Parallel()

	const secret = "whsec"
	var got event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, webhook.Verify(secret, body, r.Header, time.Minute, time.Now()))
		assert.NotEmpty(t, r.Header.Get(webhook.HeaderID))
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	s, err := webhook.NewSender(srv.URL, webhook.WithSecret(secret))
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), event{Type: "subscription.renewed", AccountID: "s1"}))
	assert.Equal(t, event{Type: "subscription.renewed", AccountID: "s1"}, got)
}

func TestSender_RetriesTemporaryFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	s, err := webhook.NewSender(srv.URL, webhook.WithBackoff(webhook.FixedBackoff(time.Millisecond)))
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), event{Type: "x"}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestSender_GivesUp(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	s, err := webhook.NewSender(srv.URL,
		webhook.WithMaxRetries(2),
		webhook.WithBackoff(webhook.FixedBackoff(time.Millisecond)),
	)
	require.NoError(t, err)

	err = s.Send(context.Background(), event{Type: "x"})
	assert.ErrorIs(t, err, webhook.ErrDeliveryFailed)
	assert.ErrorContains(t, err, "status 502: down")
	assert.Equal(t, int32(3), calls.Load())
}

func TestSender_PermanentFailureNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	t.Cleanup(srv.Close)

	s, err := webhook.NewSender(srv.URL, webhook.WithBackoff(webhook.FixedBackoff(time.Millisecond)))
	require.NoError(t, err)

	err = s.Send(context.Background(), event{Type: "x"})
	assert.ErrorIs(t, err, webhook.ErrPermanentFailure)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSender_RateLimitIsRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	s, err := webhook.NewSender(srv.URL, webhook.WithBackoff(webhook.FixedBackoff(time.Millisecond)))
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), event{Type: "x"}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSender_ContextCancelledBetweenRetries(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	s, err := webhook.NewSender(srv.URL, webhook.WithBackoff(webhook.FixedBackoff(time.Hour)))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = s.Send(ctx, event{Type: "x"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSender_UnmarshalablePayload(t *testing.T) {
	t.Parallel()

	s, err := webhook.NewSender("https://example.com/hook")
	require.NoError(t, err)
	assert.ErrorIs(t, s.Send(context.Background(), make(chan int)), webhook.ErrInvalidPayload)
}
