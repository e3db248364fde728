package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/kdprince200-netizen/equiherds/pkg/logger"
)

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthHandler answers 200 when every check passes and 503 otherwise.
// Checks run concurrently, each bounded by timeout.
func HealthHandler(log *slog.Logger, timeout time.Duration, checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		report := healthReport{Status: "ok", Checks: make(map[string]string, len(names))}

		var (
			mu sync.Mutex
			wg sync.WaitGroup
		)
		for _, name := range names {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(r.Context(), timeout)
				defer cancel()

				state := "ok"
				if err := checks[name](ctx); err != nil {
					state = "failing"
					if log != nil {
						log.ErrorContext(r.Context(), "health check failed", slog.String("check", name), logger.Error(err))
					}
				}
				mu.Lock()
				report.Checks[name] = state
				if state != "ok" {
					report.Status = "unavailable"
				}
				mu.Unlock()
			}()
		}
		wg.Wait()

		code := http.StatusOK
		if report.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	}
}
