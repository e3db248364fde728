package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdprince200-netizen/equiherds/pkg/logger"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestAttrHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "account_id", logger.AccountID("acc-1").Key)
	assert.Equal(t, "payment_id", logger.PaymentID("pi_1").Key)
	assert.Equal(t, "run_id", logger.RunID("run-1").Key)
	assert.Equal(t, "outcome", logger.Outcome("renewed").Key)
	assert.Equal(t, int64(1200), logger.Amount(1200).Value.Int64())
	assert.Equal(t, time.Second, logger.Duration(time.Second).Value.Duration())
	assert.Equal(t, "billing", logger.Component("billing").Value.String())

	assert.True(t, logger.AccountID("").Equal(slog.Attr{}))
	assert.True(t, logger.PaymentID("").Equal(slog.Attr{}))
	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
	assert.True(t, logger.Errors(nil, nil).Equal(slog.Attr{}))

	err := errors.New("boom")
	assert.Equal(t, err, logger.Error(err).Value.Any())

	g := logger.Errors(err, nil, err).Value.Group()
	assert.Len(t, g, 2)
}

func TestNew_JSONDefault(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.New(logger.WithOutput(buf))
	log.Info("hello", logger.AccountID("acc-1"))

	entry := decode(t, buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "acc-1", entry["account_id"])
}

func TestNew_InvalidFormatPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { logger.New(logger.WithFormat("xml")) })
}

func TestWithEnvironment(t *testing.T) {
	t.Parallel()

	t.Run("development is text at debug", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithEnvironment("development", "billingd"), logger.WithOutput(buf))
		log.Debug("tick")
		out := buf.String()
		assert.Contains(t, out, "level=DEBUG")
		assert.Contains(t, out, "service=billingd")
		assert.Contains(t, out, "env=development")
	})

	t.Run("production is json at info", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithEnvironment("prod", "billingd"), logger.WithOutput(buf))
		log.Debug("hidden")
		assert.Empty(t, buf.String())

		log.Info("shown")
		entry := decode(t, buf)
		assert.Equal(t, "billingd", entry["service"])
		assert.Equal(t, "production", entry["env"])
	})
}

func TestWithContextString(t *testing.T) {
	t.Parallel()

	type runKey struct{}
	buf := &bytes.Buffer{}
	log := logger.New(logger.WithOutput(buf), logger.WithContextString("run_id", runKey{}))

	ctx := context.WithValue(context.Background(), runKey{}, "run-42")
	log.With(logger.Component("billing")).InfoContext(ctx, "run started")

	entry := decode(t, buf)
	assert.Equal(t, "run-42", entry["run_id"])
	assert.Equal(t, "billing", entry["component"])
}

func TestWithContextExtractors(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	extractor := func(ctx context.Context) (slog.Attr, bool) {
		return slog.String("trigger", "schedule"), true
	}
	log := logger.New(logger.WithOutput(buf), logger.WithContextExtractors(nil, extractor))
	log.InfoContext(context.Background(), "msg")

	assert.Equal(t, "schedule", decode(t, buf)["trigger"])
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "debug", want: slog.LevelDebug},
		{in: "WARN", want: slog.LevelWarn},
		{in: " error ", want: slog.LevelError},
		{in: "loud", want: slog.LevelInfo, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := logger.ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
