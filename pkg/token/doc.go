// Package token signs JSON payloads into compact URL-safe tokens.
//
// Token format: base64url(payload).base64url(HMAC-SHA256(payload)).
// The payload is readable by anyone holding the token; only its integrity is
// protected. Payloads implementing Expirer can be parsed with ParseTokenAt,
// which also rejects expired tokens.
//
//	type Claims struct {
//	    AccountID string `json:"a"`
//	    Exp       int64  `json:"exp"`
//	}
//
//	func (c Claims) ExpiresAt() time.Time { return time.Unix(c.Exp, 0) }
//
//	tok, _ := token.GenerateToken(Claims{"42", time.Now().Add(time.Hour).Unix()}, secret)
//	claims, err := token.ParseTokenAt[Claims](tok, secret, time.Now())
package token
