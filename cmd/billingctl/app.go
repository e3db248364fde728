package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/kdprince200-netizen/equiherds/pkg/billing"
	"github.com/kdprince200-netizen/equiherds/pkg/config"
	"github.com/kdprince200-netizen/equiherds/pkg/logger"
	"github.com/kdprince200-netizen/equiherds/pkg/mongo"
)

var ErrUnknownFormat = errors.New("unknown output format")

const (
	formatTable = "table"
	formatJSON  = "json"
)

func newApp(out io.Writer) *cli.App {
	formatFlag := &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "output format: table or json",
		Value:   formatTable,
	}

	diag := func(kind string) *cli.Command {
		return &cli.Command{
			Name:  kind,
			Usage: diagnosticUsage[kind],
			Flags: []cli.Flag{formatFlag},
			Action: func(c *cli.Context) error {
				return withStore(c, func(ctx context.Context, store billing.AccountStore) error {
					accounts, err := store.ListAccounts(ctx)
					if err != nil {
						return fmt.Errorf("%w: %w", billing.ErrFetchAccounts, err)
					}
					return renderDiagnostic(out, kind, c.String("format"), accounts, time.Now().UTC())
				})
			},
		}
	}

	return &cli.App{
		Name:      "billingctl",
		Usage:     "inspect and reconcile seller subscriptions",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Usage: "dotenv file to load before reading the environment"},
		},
		Before: func(c *cli.Context) error {
			if path := c.String("env-file"); path != "" {
				return config.LoadEnv(path)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "diagnostics",
				Usage: "read-only reports over seller accounts",
				Subcommands: []*cli.Command{
					diag(diagExpired),
					diag(diagStatus),
					diag(diagCustomers),
				},
			},
			{
				Name:  "reconcile",
				Usage: "run a reconciliation pass over every account or one account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "account", Usage: "reconcile only this account id"},
					formatFlag,
				},
				Action: func(c *cli.Context) error { return reconcile(c, out) },
			},
		},
	}
}

const (
	diagExpired   = "expired"
	diagStatus    = "status"
	diagCustomers = "customers"
)

var diagnosticUsage = map[string]string{
	diagExpired:   "list sellers whose subscription has lapsed",
	diagStatus:    "list the stored and derived status of every seller",
	diagCustomers: "list sellers with their payment processor customer reference",
}

// renderDiagnostic writes one diagnostic report over accounts.
func renderDiagnostic(w io.Writer, kind, format string, accounts []billing.Account, now time.Time) error {
	var rows any
	switch kind {
	case diagExpired:
		rows = billing.DiagnoseExpiredSellers(accounts, now)
	case diagStatus:
		rows = billing.DiagnoseSellerStatuses(accounts, now)
	case diagCustomers:
		rows = billing.DiagnoseCustomerReferences(accounts)
	default:
		return fmt.Errorf("unknown diagnostic %q", kind)
	}

	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case formatTable, "":
		switch r := rows.(type) {
		case []billing.ExpiredSeller:
			return billing.WriteExpiredSellers(w, r)
		case []billing.SellerStatus:
			return billing.WriteSellerStatuses(w, r)
		case []billing.CustomerReference:
			return billing.WriteCustomerReferences(w, r)
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// renderReport prints a run report as a summary or as JSON.
func renderReport(w io.Writer, format string, rep *billing.RunReport) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case formatTable, "":
		fmt.Fprintf(w, "run %s (%s): %d accounts, %d sellers, %d synced\n",
			rep.RunID, rep.Trigger, rep.Accounts, rep.Sellers, rep.Synced)
		for _, res := range rep.Results {
			line := fmt.Sprintf("  %s\t%s", res.AccountID, res.Outcome)
			if res.Reason != "" {
				line += "\t" + res.Reason
			}
			if res.Err != nil {
				line += "\t" + res.Err.Error()
			}
			fmt.Fprintln(w, line)
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

func withStore(c *cli.Context, fn func(context.Context, billing.AccountStore) error) error {
	var (
		billingCfg billing.Config
		mongoCfg   mongo.Config
	)
	if err := config.Load(&billingCfg); err != nil {
		return err
	}
	if err := config.Load(&mongoCfg); err != nil {
		return err
	}

	ctx := c.Context
	client, err := mongo.New(ctx, mongoCfg)
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(dctx)
	}()

	return fn(ctx, billing.NewMongoStore(client.Database(mongoCfg.Database), billingCfg.AccountsCollection))
}

func reconcile(c *cli.Context, out io.Writer) error {
	return withStore(c, func(ctx context.Context, store billing.AccountStore) error {
		var (
			billingCfg billing.Config
			stripeCfg  billing.StripeConfig
		)
		if err := config.Load(&billingCfg); err != nil {
			return err
		}
		if err := config.Load(&stripeCfg); err != nil {
			return err
		}
		processor, err := billing.NewStripeProcessor(stripeCfg)
		if err != nil {
			return err
		}

		log := logger.New(
			logger.WithOutput(os.Stderr),
			logger.WithContextString("run_id", billing.RunIDCtxKey),
		)
		r := billing.NewReconciler(store, processor,
			billing.WithLogger(log),
			billing.WithCalculator(billing.NewCalculator(billingCfg.CalculatorOptions()...)),
			billing.WithConcurrency(billingCfg.Concurrency),
		)
		ctx = billing.WithTrigger(ctx, billing.TriggerManual)

		if id := c.String("account"); id != "" {
			res, err := r.ReconcileAccount(ctx, id)
			if err != nil {
				return err
			}
			log.InfoContext(ctx, "account reconciled",
				logger.AccountID(res.AccountID), logger.Outcome(string(res.Outcome)))
			return renderReport(out, c.String("format"), &billing.RunReport{
				Trigger: billing.TriggerManual,
				Results: []billing.AccountResult{res},
			})
		}

		rep, err := r.Run(ctx)
		if err != nil && rep == nil {
			return err
		}
		log.InfoContext(ctx, "run finished", slog.Int("accounts", rep.Accounts))
		if rerr := renderReport(out, c.String("format"), rep); rerr != nil {
			return rerr
		}
		return err
	})
}
