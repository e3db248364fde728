package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePgConn struct {
	sql     string
	args    []any
	execErr error
}

func (f *fakePgConn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = sql
	f.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), f.execErr
}

func (f *fakePgConn) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("relation subscription_payments does not exist")
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestPgLedger_AppendPayment(t *testing.T) {
	t.Parallel()

	db := &fakePgConn{}
	l := NewPgLedger(db)

	paid := mustTime(t, "2025-06-15T14:00:00+02:00")
	expiry := paid.AddDate(0, 0, 30)
	err := l.AppendPayment(context.Background(), "acc", Payment{
		PaymentID:            "pi_1",
		Amount:               1200,
		Currency:             "eur",
		Status:               PaymentSucceeded,
		Date:                 paid,
		SubscriptionDuration: 30,
		SubscriptionExpiry:   &expiry,
	})
	require.NoError(t, err)

	assert.Contains(t, db.sql, "ON CONFLICT (payment_id) DO NOTHING")
	require.Len(t, db.args, 11)
	assert.Equal(t, "pi_1", db.args[0])
	assert.Equal(t, "acc", db.args[1])
	assert.Equal(t, int64(1200), db.args[2])
	assert.Equal(t, "succeeded", db.args[4])
	assert.Equal(t, time.UTC, db.args[5].(time.Time).Location())
	assert.Equal(t, 30, db.args[9])
}

func TestPgLedger_Errors(t *testing.T) {
	t.Parallel()

	l := NewPgLedger(&fakePgConn{execErr: errors.New("duplicate")})
	err := l.AppendPayment(context.Background(), "acc", Payment{PaymentID: "pi_1"})
	assert.ErrorContains(t, err, "insert payment pi_1")

	_, err = l.PaymentsSince(context.Background(), time.Now())
	assert.ErrorContains(t, err, "query payments")

	assert.Panics(t, func() { NewPgLedger(nil) })
}
