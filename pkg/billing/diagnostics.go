package billing

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"
)

// ExpiredSeller is one row of the expired-sellers diagnostic.
type ExpiredSeller struct {
	AccountID          string     `json:"account_id"`
	Email              string     `json:"email,omitempty"`
	ExpiryDate         *time.Time `json:"expiry_date,omitempty"`
	DaysOverdue        int        `json:"days_overdue"`
	AutoRenewalEnabled bool       `json:"auto_renewal_enabled"`
	HasCustomer        bool       `json:"has_customer"`
	HasPaymentMethod   bool       `json:"has_payment_method"`
	Eligible           bool       `json:"eligible"`
}

// SellerStatus is one row of the live-status diagnostic.
type SellerStatus struct {
	AccountID    string             `json:"account_id"`
	CachedStatus SubscriptionStatus `json:"cached_status"`
	Derived      DerivedStatus      `json:"derived"`
}

// CustomerReference is one row of the customer-reference diagnostic.
type CustomerReference struct {
	AccountID       string `json:"account_id"`
	CustomerID      string `json:"customer_id,omitempty"`
	PaymentMethodID string `json:"payment_method_id,omitempty"`
}

// HasCustomer reports whether a processor customer reference is stored.
func (c CustomerReference) HasCustomer() bool {
	return c.CustomerID != ""
}

// DiagnoseExpiredSellers lists expired sellers with their auto-renewal readiness.
func DiagnoseExpiredSellers(accounts []Account, now time.Time) []ExpiredSeller {
	var out []ExpiredSeller
	for _, a := range sellersByID(accounts) {
		st := EvaluateAt(&a, now)
		if !st.IsExpired {
			continue
		}
		out = append(out, ExpiredSeller{
			AccountID:          a.ID,
			Email:              a.Email,
			ExpiryDate:         st.ExpiryDate,
			DaysOverdue:        st.DaysOverdue,
			AutoRenewalEnabled: a.AutoRenewalEnabled,
			HasCustomer:        a.PaymentInstrument.CustomerID != "",
			HasPaymentMethod:   a.PaymentInstrument.PaymentMethodID != "",
			Eligible:           a.AutoRenewalEligible(),
		})
	}
	return out
}

// DiagnoseSellerStatuses evaluates every seller.
func DiagnoseSellerStatuses(accounts []Account, now time.Time) []SellerStatus {
	sellers := sellersByID(accounts)
	out := make([]SellerStatus, 0, len(sellers))
	for _, a := range sellers {
		out = append(out, SellerStatus{
			AccountID:    a.ID,
			CachedStatus: a.SubscriptionStatus,
			Derived:      EvaluateAt(&a, now),
		})
	}
	return out
}

// DiagnoseCustomerReferences reports which sellers have processor references stored.
func DiagnoseCustomerReferences(accounts []Account) []CustomerReference {
	sellers := sellersByID(accounts)
	out := make([]CustomerReference, 0, len(sellers))
	for _, a := range sellers {
		out = append(out, CustomerReference{
			AccountID:       a.ID,
			CustomerID:      a.PaymentInstrument.CustomerID,
			PaymentMethodID: a.PaymentInstrument.PaymentMethodID,
		})
	}
	return out
}

func sellersByID(accounts []Account) []Account {
	out := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		if a.IsSeller() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// WriteExpiredSellers prints the expired-sellers diagnostic as a table.
func WriteExpiredSellers(w io.Writer, rows []ExpiredSeller) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCOUNT\tEXPIRY\tOVERDUE\tAUTO-RENEW\tCUSTOMER\tMETHOD\tELIGIBLE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			r.AccountID, formatDate(r.ExpiryDate), r.DaysOverdue,
			yesNo(r.AutoRenewalEnabled), yesNo(r.HasCustomer), yesNo(r.HasPaymentMethod), yesNo(r.Eligible))
	}
	fmt.Fprintf(tw, "\n%d expired %s\n", len(rows), plural(len(rows), "seller", "sellers"))
	return tw.Flush()
}

// WriteSellerStatuses prints the live-status diagnostic as a table.
func WriteSellerStatuses(w io.Writer, rows []SellerStatus) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCOUNT\tCACHED\tDERIVED\tDAYS\tSOURCE\tSTALE\tMESSAGE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.AccountID, orDash(string(r.CachedStatus)), r.Derived.Status, r.Derived.DaysRemaining,
			orDash(string(r.Derived.Source)), yesNo(r.Derived.NeedsUpdate), r.Derived.Message)
	}
	return tw.Flush()
}

// WriteCustomerReferences prints the customer-reference diagnostic as a table.
func WriteCustomerReferences(w io.Writer, rows []CustomerReference) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCOUNT\tCUSTOMER\tPAYMENT METHOD")
	missing := 0
	for _, r := range rows {
		if !r.HasCustomer() {
			missing++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.AccountID, orDash(r.CustomerID), orDash(r.PaymentMethodID))
	}
	fmt.Fprintf(tw, "\n%d of %d sellers without a customer reference\n", missing, len(rows))
	return tw.Flush()
}

// ExpiredSellers fetches accounts and runs DiagnoseExpiredSellers.
func (r *Reconciler) ExpiredSellers(ctx context.Context) ([]ExpiredSeller, error) {
	accounts, err := r.listForDiagnostics(ctx)
	if err != nil {
		return nil, err
	}
	return DiagnoseExpiredSellers(accounts, r.now()), nil
}

// SellerStatuses fetches accounts and runs DiagnoseSellerStatuses.
func (r *Reconciler) SellerStatuses(ctx context.Context) ([]SellerStatus, error) {
	accounts, err := r.listForDiagnostics(ctx)
	if err != nil {
		return nil, err
	}
	return DiagnoseSellerStatuses(accounts, r.now()), nil
}

// CustomerReferences fetches accounts and runs DiagnoseCustomerReferences.
func (r *Reconciler) CustomerReferences(ctx context.Context) ([]CustomerReference, error) {
	accounts, err := r.listForDiagnostics(ctx)
	if err != nil {
		return nil, err
	}
	return DiagnoseCustomerReferences(accounts), nil
}

func (r *Reconciler) listForDiagnostics(ctx context.Context) ([]Account, error) {
	accounts, err := r.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchAccounts, err)
	}
	return accounts, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
