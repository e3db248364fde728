package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/kdprince200-netizen/equiherds/pkg/billing"
	"github.com/kdprince200-netizen/equiherds/pkg/billing/httpapi"
	"github.com/kdprince200-netizen/equiherds/pkg/config"
	"github.com/kdprince200-netizen/equiherds/pkg/email"
	"github.com/kdprince200-netizen/equiherds/pkg/environment"
	"github.com/kdprince200-netizen/equiherds/pkg/httpserver"
	"github.com/kdprince200-netizen/equiherds/pkg/logger"
	"github.com/kdprince200-netizen/equiherds/pkg/mongo"
	"github.com/kdprince200-netizen/equiherds/pkg/pg"
	"github.com/kdprince200-netizen/equiherds/pkg/ratelimiter"
	"github.com/kdprince200-netizen/equiherds/pkg/redis"
	"github.com/kdprince200-netizen/equiherds/pkg/webhook"
)

type appConfig struct {
	Env         string `env:"ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"billingd"`
	LogLevel    string `env:"LOG_LEVEL"`
	EnvFile     string `env:"ENV_FILE" envDefault:".env"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("billingd exited", logger.Error(err))
		os.Exit(1)
	}
}

func run() error {
	var app appConfig
	if err := config.Load(&app); err != nil {
		return err
	}
	if _, err := os.Stat(app.EnvFile); err == nil {
		if err := config.LoadEnv(app.EnvFile); err != nil {
			return err
		}
		if err := config.Load(&app); err != nil {
			return err
		}
	}

	env := environment.Parse(app.Env)
	opts := []logger.Option{
		logger.WithEnvironment(app.Env, app.ServiceName),
		logger.WithContextString("run_id", billing.RunIDCtxKey),
		logger.WithContextString("request_id", middleware.RequestIDKey),
	}
	if app.LogLevel != "" {
		lvl, err := logger.ParseLevel(app.LogLevel)
		if err != nil {
			return err
		}
		opts = append(opts, logger.WithLevel(lvl))
	}
	log := logger.New(opts...)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = environment.WithContext(ctx, env)

	var (
		billingCfg billing.Config
		mongoCfg   mongo.Config
		redisCfg   redis.Config
		stripeCfg  billing.StripeConfig
		httpCfg    httpserver.Config
		s3Cfg      billing.S3Config
		hookCfg    billing.WebhookConfig
		limitCfg   ratelimiter.Config
	)
	for _, load := range []func() error{
		func() error { return config.Load(&billingCfg) },
		func() error { return config.Load(&mongoCfg) },
		func() error { return config.Load(&redisCfg) },
		func() error { return config.Load(&stripeCfg) },
		func() error { return config.Load(&httpCfg) },
		func() error { return config.Load(&s3Cfg) },
		func() error { return config.Load(&hookCfg) },
		func() error { return config.Load(&limitCfg) },
	} {
		if err := load(); err != nil {
			return err
		}
	}
	if billingCfg.ProposalSecret == "" {
		return errors.New("BILLING_PROPOSAL_SECRET is required")
	}

	mongoClient, err := mongo.New(ctx, mongoCfg)
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(dctx)
	}()
	store := billing.NewMongoStore(mongoClient.Database(mongoCfg.Database), billingCfg.AccountsCollection)

	redisClient, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	processor, err := billing.NewStripeProcessor(stripeCfg)
	if err != nil {
		return err
	}

	checks := map[string]httpserver.HealthCheck{
		"mongo": mongo.Healthcheck(mongoClient),
		"redis": redis.Healthcheck(redisClient),
	}

	ropts := []billing.ReconcilerOption{
		billing.WithLogger(log),
		billing.WithLocker(billing.NewRedisLocker(redisClient, billingCfg.LockTTL)),
		billing.WithCalculator(billing.NewCalculator(billingCfg.CalculatorOptions()...)),
		billing.WithConcurrency(billingCfg.Concurrency),
	}

	if billingCfg.LedgerEnabled {
		var pgCfg pg.Config
		if err := config.Load(&pgCfg); err != nil {
			return err
		}
		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
			return err
		}
		ropts = append(ropts, billing.WithReportingLedger(billing.NewPgLedger(pool)))
		checks["postgres"] = pg.Healthcheck(pool)
	}

	var notifiers []billing.Notifier
	var emailCfg email.Config
	if err := config.Load(&emailCfg); err != nil {
		log.WarnContext(ctx, "renewal e-mails disabled", logger.Error(err))
	} else {
		sender, err := email.New(emailCfg)
		if err != nil {
			return err
		}
		notifiers = append(notifiers, billing.NewEmailNotifier(sender, language.Make(billingCfg.NotifyLanguage)))
	}
	if hookCfg.Enabled() {
		sender, err := webhook.NewSender(hookCfg.URL,
			webhook.WithSecret(hookCfg.Secret),
			webhook.WithMaxRetries(hookCfg.MaxRetries),
		)
		if err != nil {
			return err
		}
		notifiers = append(notifiers, billing.NewWebhookNotifier(sender))
	}
	ropts = append(ropts, billing.WithNotifier(notifiers...))

	if s3Cfg.Enabled() {
		archiver, err := billing.NewS3Archiver(ctx, s3Cfg)
		if err != nil {
			return err
		}
		ropts = append(ropts, billing.WithArchiver(archiver))
	}

	reconciler := billing.NewReconciler(store, processor, ropts...)

	var catalog billing.PlanCatalog
	if billingCfg.CatalogPath != "" {
		c, err := billing.LoadCatalogFile(billingCfg.CatalogPath)
		if err != nil {
			return err
		}
		catalog = c
	}
	checkout := billing.NewCheckout(reconciler, catalog, billingCfg.ProposalSecret,
		append(billingCfg.CheckoutOptions(),
			billing.WithNonceStore(billing.NewRedisNonceStore(redisClient, billingCfg.ProposalTTL)))...)

	scheduler, err := billing.NewScheduler(reconciler, billingCfg.Schedule, log)
	if err != nil {
		return err
	}

	limiter, err := ratelimiter.NewBucket(ratelimiter.NewRedisStore(redisClient, "billing:ratelimit:"), limitCfg)
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(reconciler, checkout, log,
		httpapi.WithEnvironment(env),
		httpapi.WithRateLimit(limiter),
		httpapi.WithHealth(httpserver.HealthHandler(log, 3*time.Second, checks)),
	)
	server := httpserver.New(httpCfg, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx, router) })
	g.Go(func() error {
		if billingCfg.RunOnStart {
			_, _ = scheduler.RunNow(gctx, billing.TriggerSession)
		}
		scheduler.Start(gctx)
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})

	log.InfoContext(ctx, "billingd started",
		slog.String("schedule", billingCfg.Schedule),
		slog.Bool("ledger", billingCfg.LedgerEnabled),
		slog.Bool("archive", s3Cfg.Enabled()),
		slog.Bool("webhook", hookCfg.Enabled()),
	)
	err = g.Wait()
	log.InfoContext(context.WithoutCancel(ctx), "billingd stopped")
	return err
}
