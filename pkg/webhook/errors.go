package webhook

import "errors"

var (
	ErrDeliveryFailed   = errors.New("webhook: delivery failed")
	ErrPermanentFailure = errors.New("webhook: permanent failure")
	ErrInvalidURL       = errors.New("webhook: invalid url")
	ErrInvalidPayload   = errors.New("webhook: invalid payload")
	ErrMissingSecret    = errors.New("webhook: signing secret is required")
	ErrInvalidSignature = errors.New("webhook: invalid signature")
	ErrTimeout          = errors.New("webhook: request timeout")
)
