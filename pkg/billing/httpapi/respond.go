package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/kdprince200-netizen/equiherds/pkg/billing"
	"github.com/kdprince200-netizen/equiherds/pkg/logger"
)

var (
	ErrUnsupportedMediaType = errors.New("httpapi: expected application/json")
	ErrInvalidJSON          = errors.New("httpapi: invalid JSON body")
	ErrRateLimited          = errors.New("httpapi: too many requests")
)

// envelope is the response body of every JSON endpoint.
type envelope struct {
	Data  any          `json:"data,omitempty"`
	Error *errorDetail `json:"error,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const maxBodyBytes = 1 << 20

// decodeJSON reads a strict JSON body. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	if r.ContentLength == 0 && r.Header.Get("Content-Type") == "" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return ErrUnsupportedMediaType
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data})
}

// respondError maps domain errors to HTTP statuses. Server-side failures are logged.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Error(err))
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: &errorDetail{Code: code, Message: err.Error()}})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, "unsupported_media_type"
	case errors.Is(err, ErrInvalidJSON):
		return http.StatusBadRequest, "invalid_json"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, billing.ErrAccountNotFound):
		return http.StatusNotFound, "account_not_found"
	case errors.Is(err, billing.ErrPlanNotFound):
		return http.StatusNotFound, "plan_not_found"
	case errors.Is(err, billing.ErrNotSeller):
		return http.StatusForbidden, "not_seller"
	case errors.Is(err, billing.ErrInvalidPlan):
		return http.StatusUnprocessableEntity, "invalid_plan"
	case errors.Is(err, billing.ErrInvalidDuration):
		return http.StatusUnprocessableEntity, "invalid_duration"
	case errors.Is(err, billing.ErrNoPaymentInstrument):
		return http.StatusUnprocessableEntity, "no_payment_instrument"
	case errors.Is(err, billing.ErrTrialNotAvailable):
		return http.StatusConflict, "trial_not_available"
	case errors.Is(err, billing.ErrProposalExpired):
		return http.StatusGone, "proposal_expired"
	case errors.Is(err, billing.ErrProposalUsed):
		return http.StatusConflict, "proposal_used"
	case errors.Is(err, billing.ErrInvalidProposal):
		return http.StatusBadRequest, "invalid_proposal"
	case errors.Is(err, billing.ErrChargeDeclined):
		return http.StatusPaymentRequired, "charge_declined"
	case errors.Is(err, billing.ErrAccountLocked):
		return http.StatusConflict, "account_locked"
	case errors.Is(err, billing.ErrProcessor):
		return http.StatusBadGateway, "processor_error"
	case errors.Is(err, billing.ErrFetchAccounts):
		return http.StatusServiceUnavailable, "accounts_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
