// Package logger builds *slog.Logger instances with per-environment defaults
// and a handler decorator that copies request- and run-scoped values from the
// context onto every record.
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.Env, "billingd"),
//	    logger.WithContextString("run_id", billing.RunIDCtxKey),
//	)
//	log.InfoContext(ctx, "subscription renewed",
//	    logger.AccountID(id),
//	    logger.PaymentID(paymentID),
//	    logger.Amount(1200),
//	)
//
// Attribute helpers keep key names consistent across packages. Helpers taking
// an identifier or an error return an empty Attr for zero values, which slog
// omits from the output.
package logger
