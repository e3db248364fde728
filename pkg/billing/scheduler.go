package billing

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/kdprince200-netizen/equiherds/pkg/logger"
)

// Scheduler triggers reconciliation runs on a cron schedule.
// A tick that fires while the previous run is still going is skipped.
type Scheduler struct {
	r      *Reconciler
	cron   *cron.Cron
	logger *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler validates spec (standard five-field cron or @every/@hourly descriptors).
func NewScheduler(r *Reconciler, spec string, log *slog.Logger) (*Scheduler, error) {
	if r == nil {
		return nil, errors.New("billing: reconciler is required")
	}
	if log == nil {
		log = r.logger
	}
	log = log.With(logger.Component("billing.scheduler"))

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(log.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	s := &Scheduler{r: r, cron: c, logger: log}
	if _, err := c.AddFunc(spec, s.tick); err != nil {
		return nil, errors.Join(errors.New("billing: invalid reconcile schedule "+spec), err)
	}
	return s, nil
}

// Start begins firing on schedule. Runs use ctx for values and cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.InfoContext(ctx, "reconciliation scheduled", slog.Int("entries", len(s.cron.Entries())))
}

// Stop cancels the in-flight run, if any, and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
}

// RunNow performs one run with the given trigger outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context, trigger string) (*RunReport, error) {
	report, err := s.r.Run(WithTrigger(ctx, trigger))
	if err != nil {
		s.logger.ErrorContext(ctx, "reconciliation run failed", slog.String("trigger", trigger), logger.Error(err))
	}
	return report, err
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	_, _ = s.RunNow(ctx, TriggerSchedule)
}
