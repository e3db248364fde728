package httpapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdprince200-netizen/equiherds/pkg/billing/httpapi"
	"github.com/kdprince200-netizen/equiherds/pkg/ratelimiter"
)

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (*ratelimiter.Result, error) {
	return nil, ratelimiter.ErrStoreUnavailable
}

func TestRateLimit_PerAccount(t *testing.T) {
	t.Parallel()

	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	limiter, err := ratelimiter.NewBucket(store, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Hour})
	require.NoError(t, err)

	e := newEnvWith(t, []httpapi.Option{httpapi.WithRateLimit(limiter)},
		seller("s1", now.AddDate(0, 0, 10)),
		seller("s2", now.AddDate(0, 0, 10)),
	)

	code, _ := e.do(t, http.MethodPost, "/accounts/s1/reconcile", "")
	require.Equal(t, http.StatusOK, code)

	code, resp := e.do(t, http.MethodPost, "/accounts/s1/reconcile", "")
	require.Equal(t, http.StatusTooManyRequests, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "rate_limited", resp.Error.Code)

	code, _ = e.do(t, http.MethodPost, "/accounts/s2/reconcile", "")
	assert.Equal(t, http.StatusOK, code)

	// Reads are never throttled.
	for range 3 {
		code, _ = e.do(t, http.MethodGet, "/accounts/s1/status", "")
		assert.Equal(t, http.StatusOK, code)
	}
}

func TestRateLimit_StoreOutageFailsOpen(t *testing.T) {
	t.Parallel()

	e := newEnvWith(t, []httpapi.Option{httpapi.WithRateLimit(brokenLimiter{})},
		seller("s1", now.AddDate(0, 0, 10)),
	)

	for range 2 {
		code, resp := e.do(t, http.MethodPost, "/accounts/s1/reconcile", "")
		assert.Equal(t, http.StatusOK, code)
		assert.Nil(t, resp.Error)
	}
}
