package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
)

// GenerateToken JSON-encodes the payload and appends its HMAC-SHA256 signature.
func GenerateToken[T any](payload T, secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Join(ErrEncodePayload, err)
	}

	return base64.RawURLEncoding.EncodeToString(data) + "." +
		base64.RawURLEncoding.EncodeToString(sign(data, secret)), nil
}

func sign(data []byte, secret string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return h.Sum(nil)
}
