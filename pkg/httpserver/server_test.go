package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdprince200-netizen/equiherds/pkg/httpserver"
)

func TestRunAndShutdown(t *testing.T) {
	t.Parallel()

	srv := httpserver.New(httpserver.Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) }))
	}()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr().String())
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.Fail(t, "run did not return")
	}
}

func TestRun_StartError(t *testing.T) {
	t.Parallel()

	srv := httpserver.New(httpserver.Config{Addr: ":invalid"}, nil)
	err := srv.Run(context.Background(), http.NotFoundHandler())
	assert.ErrorIs(t, err, httpserver.ErrStart)
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	h := httpserver.HealthHandler(nil, time.Second, map[string]httpserver.HealthCheck{
		"mongo": func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, map[string]string{"mongo": "ok", "redis": "failing"}, body.Checks)
}

func TestHealthHandler_NoChecks(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	httpserver.HealthHandler(nil, time.Second, nil)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
