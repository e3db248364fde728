// Package environment names the deployment environment and carries it through
// request contexts.
package environment

import (
	"context"
	"net/http"
	"strings"
)

// Environment is the deployment environment of the running process.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Parse normalises common spellings. Anything unrecognised is Development.
func Parse(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production", "prod":
		return Production
	case "staging", "stage":
		return Staging
	default:
		return Development
	}
}

// IsProduction reports whether e is Production.
func (e Environment) IsProduction() bool {
	return e == Production
}

type contextKey struct{}

// WithContext stores e in ctx.
func WithContext(ctx context.Context, e Environment) context.Context {
	return context.WithValue(ctx, contextKey{}, e)
}

// FromContext returns the stored environment, or Development when none was set.
func FromContext(ctx context.Context) Environment {
	if ctx != nil {
		if e, ok := ctx.Value(contextKey{}).(Environment); ok {
			return e
		}
	}
	return Development
}

// Middleware attaches e to every request context.
func Middleware(e Environment) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), e)))
		})
	}
}
