package token

import (
	"crypto/hmac"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Expirer is implemented by payloads that stop being valid at some point.
type Expirer interface {
	ExpiresAt() time.Time
}

// ParseToken verifies the signature and decodes the payload.
func ParseToken[T any](token string, secret string) (T, error) {
	var payload T
	if secret == "" {
		return payload, ErrEmptySecret
	}

	payloadEnc, sigEnc, ok := strings.Cut(token, ".")
	if !ok || payloadEnc == "" || sigEnc == "" || strings.Contains(sigEnc, ".") {
		return payload, ErrInvalidToken
	}

	data, err := base64.RawURLEncoding.DecodeString(payloadEnc)
	if err != nil {
		return payload, errors.Join(ErrInvalidToken, err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigEnc)
	if err != nil {
		return payload, errors.Join(ErrInvalidToken, err)
	}

	if !hmac.Equal(sig, sign(data, secret)) {
		return payload, ErrSignatureInvalid
	}

	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, errors.Join(ErrInvalidToken, err)
	}
	return payload, nil
}

// ParseTokenAt is ParseToken for expiring payloads. A payload whose expiry is
// not after now is rejected with ErrTokenExpired.
func ParseTokenAt[T Expirer](token string, secret string, now time.Time) (T, error) {
	payload, err := ParseToken[T](token, secret)
	if err != nil {
		return payload, err
	}
	if !payload.ExpiresAt().After(now) {
		return payload, ErrTokenExpired
	}
	return payload, nil
}
