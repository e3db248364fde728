package token

import "errors"

var (
	ErrInvalidToken     = errors.New("token: invalid token format")
	ErrSignatureInvalid = errors.New("token: signature mismatch")
	ErrTokenExpired     = errors.New("token: token has expired")
	ErrEmptySecret      = errors.New("token: signing secret is empty")
	ErrEncodePayload    = errors.New("token: failed to encode payload")
)
