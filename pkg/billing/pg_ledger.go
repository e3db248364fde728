package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgConn is the subset of *pgxpool.Pool used by PgLedger.
type pgConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PgLedger mirrors every confirmed payment into the subscription_payments
// reporting table. The account store stays the source of truth.
type PgLedger struct {
	db pgConn
}

// NewPgLedger creates a ledger on top of a pgx pool or connection.
func NewPgLedger(db pgConn) *PgLedger {
	if db == nil {
		panic("billing: postgres connection is required")
	}
	return &PgLedger{db: db}
}

const insertPaymentQuery = `
INSERT INTO subscription_payments (
	payment_id, account_id, amount, currency, status, paid_at,
	subscription_id, subscription_name, subscription_price,
	subscription_duration, subscription_expiry
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (payment_id) DO NOTHING`

// AppendPayment implements PaymentRecorder. Duplicate payment ids are ignored.
func (l *PgLedger) AppendPayment(ctx context.Context, accountID string, p Payment) error {
	_, err := l.db.Exec(ctx, insertPaymentQuery,
		p.PaymentID,
		accountID,
		p.Amount,
		p.Currency,
		string(p.Status),
		p.Date.UTC(),
		p.SubscriptionID,
		p.SubscriptionName,
		p.SubscriptionPrice,
		p.SubscriptionDuration,
		p.SubscriptionExpiry,
	)
	if err != nil {
		return fmt.Errorf("insert payment %s: %w", p.PaymentID, err)
	}
	return nil
}

// LedgerEntry is one row of the reporting table.
type LedgerEntry struct {
	AccountID string
	Payment
}

const listPaymentsQuery = `
SELECT payment_id, account_id, amount, currency, status, paid_at,
	subscription_id, subscription_name, subscription_price,
	subscription_duration, subscription_expiry
FROM subscription_payments
WHERE paid_at >= $1
ORDER BY paid_at, payment_id`

// PaymentsSince returns mirrored payments made at or after since.
func (l *PgLedger) PaymentsSince(ctx context.Context, since time.Time) ([]LedgerEntry, error) {
	rows, err := l.db.Query(ctx, listPaymentsQuery, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (LedgerEntry, error) {
		var (
			e      LedgerEntry
			status string
		)
		err := row.Scan(
			&e.PaymentID,
			&e.AccountID,
			&e.Amount,
			&e.Currency,
			&status,
			&e.Date,
			&e.SubscriptionID,
			&e.SubscriptionName,
			&e.SubscriptionPrice,
			&e.SubscriptionDuration,
			&e.SubscriptionExpiry,
		)
		e.Status = PaymentStatus(status)
		e.SubscriptionStatus = StatusActive
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan payments: %w", err)
	}
	return entries, nil
}
