package billing

import (
	"log/slog"
	"time"
)

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

func WithLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRecorder sets where payments are appended. Defaults to the account store
// when it implements PaymentRecorder.
func WithRecorder(rec PaymentRecorder) ReconcilerOption {
	return func(r *Reconciler) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithReportingLedger adds secondary recorders. Their failures are logged and
// never fail the account.
func WithReportingLedger(recs ...PaymentRecorder) ReconcilerOption {
	return func(r *Reconciler) {
		for _, rec := range recs {
			if rec != nil {
				r.mirrors = append(r.mirrors, rec)
			}
		}
	}
}

func WithLocker(l Locker) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.locker = l
		}
	}
}

// WithNotifier reports renewal outcomes to every non-nil notifier.
func WithNotifier(ns ...Notifier) ReconcilerOption {
	return func(r *Reconciler) {
		var all Notifiers
		for _, n := range ns {
			if n != nil {
				all = append(all, n)
			}
		}
		switch len(all) {
		case 0:
		case 1:
			r.notifier = all[0]
		default:
			r.notifier = all
		}
	}
}

func WithArchiver(a ReportArchiver) ReconcilerOption {
	return func(r *Reconciler) {
		if a != nil {
			r.archiver = a
		}
	}
}

func WithCalculator(c Calculator) ReconcilerOption {
	return func(r *Reconciler) {
		r.calc = c
	}
}

// WithConcurrency sets how many accounts are processed in parallel.
// Charges for one account are always serialized through the Locker.
func WithConcurrency(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithClock overrides the time source, mostly for tests.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}
