package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kdprince200-netizen/equiherds/pkg/billing"
)

// allowedTriggers are the triggers a caller may name for a full run.
var allowedTriggers = map[string]bool{
	billing.TriggerManual:  true,
	billing.TriggerSession: true,
	billing.TriggerBilling: true,
}

func (h *Handler) reconcileAll(w http.ResponseWriter, r *http.Request) {
	trigger := r.URL.Query().Get("trigger")
	if !allowedTriggers[trigger] {
		trigger = billing.TriggerManual
	}

	report, err := h.reconciler.Run(billing.WithTrigger(r.Context(), trigger))
	if err != nil && report == nil {
		h.respondError(w, r, err)
		return
	}
	status := http.StatusOK
	if report.Cancelled {
		status = http.StatusAccepted
	}
	respondJSON(w, status, report)
}

func (h *Handler) reconcileAccount(w http.ResponseWriter, r *http.Request) {
	ctx := billing.WithTrigger(r.Context(), billing.TriggerBilling)
	res, err := h.reconciler.ReconcileAccount(ctx, chi.URLParam(r, "accountID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, accountResultView(res))
}

type statusView struct {
	AccountID          string                     `json:"account_id"`
	CachedStatus       billing.SubscriptionStatus `json:"cached_status"`
	AutoRenewalEnabled bool                       `json:"auto_renewal_enabled"`
	HasPaymentMethod   bool                       `json:"has_payment_method"`
	Derived            billing.DerivedStatus      `json:"derived"`
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	a, st, err := h.reconciler.Status(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, statusView{
		AccountID:          a.ID,
		CachedStatus:       a.SubscriptionStatus,
		AutoRenewalEnabled: a.AutoRenewalEnabled,
		HasPaymentMethod:   a.PaymentInstrument.Complete(),
		Derived:            st,
	})
}

func (h *Handler) syncStatus(w http.ResponseWriter, r *http.Request) {
	res, err := h.reconciler.SyncStatus(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type autoRenewalRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *Handler) setAutoRenewal(w http.ResponseWriter, r *http.Request) {
	var req autoRenewalRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.Enabled == nil {
		h.respondError(w, r, ErrInvalidJSON)
		return
	}

	res, err := h.reconciler.SetAutoRenewal(r.Context(), chi.URLParam(r, "accountID"), *req.Enabled)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, accountResultView(res))
}

type paymentMethodRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
	Email           string `json:"email"`
	Name            string `json:"name"`
	MakeDefault     bool   `json:"make_default"`
}

func (h *Handler) savePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req paymentMethodRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	a, err := h.checkout.SavePaymentInstrument(r.Context(), chi.URLParam(r, "accountID"),
		req.Email, req.Name, strings.TrimSpace(req.PaymentMethodID), req.MakeDefault)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, a.PaymentInstrument)
}

type trialRequest struct {
	Days int `json:"days"`
}

func (h *Handler) startTrial(w http.ResponseWriter, r *http.Request) {
	var req trialRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	a, err := h.checkout.StartTrial(r.Context(), chi.URLParam(r, "accountID"), req.Days)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"account_id":          a.ID,
		"subscription_status": a.SubscriptionStatus,
		"subscription_expiry": a.SubscriptionExpiry,
	})
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	offer, err := billing.ParseOfferKind(r.URL.Query().Get("offer"))
	if err != nil {
		h.respondError(w, r, invalidPlan(err))
		return
	}

	q, err := h.checkout.Quote(r.Context(), chi.URLParam(r, "accountID"), r.URL.Query().Get("plan"), offer)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

type proposalRequest struct {
	PlanID string `json:"plan_id"`
	Offer  string `json:"offer"`
}

func (h *Handler) propose(w http.ResponseWriter, r *http.Request) {
	var req proposalRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	offer, err := billing.ParseOfferKind(req.Offer)
	if err != nil {
		h.respondError(w, r, invalidPlan(err))
		return
	}

	p, err := h.checkout.ProposeCharge(r.Context(), chi.URLParam(r, "accountID"), req.PlanID, offer)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

type confirmRequest struct {
	Token string `json:"token"`
}

func (h *Handler) confirmProposal(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.Token == "" {
		h.respondError(w, r, billing.ErrInvalidProposal)
		return
	}

	res, err := h.checkout.ConfirmCharge(r.Context(), req.Token)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handler) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.checkout.Plans(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if plans == nil {
		plans = []billing.Plan{}
	}
	respondJSON(w, http.StatusOK, plans)
}

func (h *Handler) expiredSellers(w http.ResponseWriter, r *http.Request) {
	rows, err := h.reconciler.ExpiredSellers(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if wantsTable(r) {
		writeTable(w, func() error { return billing.WriteExpiredSellers(w, rows) })
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *Handler) sellerStatuses(w http.ResponseWriter, r *http.Request) {
	rows, err := h.reconciler.SellerStatuses(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if wantsTable(r) {
		writeTable(w, func() error { return billing.WriteSellerStatuses(w, rows) })
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *Handler) customerReferences(w http.ResponseWriter, r *http.Request) {
	rows, err := h.reconciler.CustomerReferences(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if wantsTable(r) {
		writeTable(w, func() error { return billing.WriteCustomerReferences(w, rows) })
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func wantsTable(r *http.Request) bool {
	return r.URL.Query().Get("format") == "table"
}

func writeTable(w http.ResponseWriter, write func() error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = write()
}

// accountResult is AccountResult with its error flattened for the wire.
type accountResult struct {
	billing.AccountResult
	Error string `json:"error,omitempty"`
}

func accountResultView(res billing.AccountResult) accountResult {
	v := accountResult{AccountResult: res}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	return v
}

func invalidPlan(err error) error {
	return fmt.Errorf("%w: %w", billing.ErrInvalidPlan, err)
}
