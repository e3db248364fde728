package billing

import "context"

type (
	runIDCtxKey   struct{}
	triggerCtxKey struct{}
)

// Triggers name what started a reconciliation.
const (
	TriggerSchedule = "schedule"
	TriggerSession  = "session"
	TriggerSettings = "settings"
	TriggerBilling  = "billing_page"
	TriggerManual   = "manual"
)

// RunIDCtxKey is exported so loggers can extract the run id from context.
var RunIDCtxKey = runIDCtxKey{}

// WithRunID stores the reconciliation run id in ctx.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDCtxKey{}, runID)
}

// RunIDFromContext returns the run id stored by WithRunID.
func RunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDCtxKey{}).(string)
	return id, ok
}

// WithTrigger records what started the reconciliation.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerCtxKey{}, trigger)
}

// TriggerFromContext returns the trigger or TriggerManual when none was set.
func TriggerFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(triggerCtxKey{}).(string); ok && t != "" {
		return t
	}
	return TriggerManual
}
