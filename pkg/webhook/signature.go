package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Signature headers set on every signed delivery.
const (
	HeaderSignature = "X-Billing-Signature"
	HeaderTimestamp = "X-Billing-Timestamp"
	HeaderID        = "X-Billing-Delivery"
)

// Signature binds a payload to the moment it was sent.
type Signature struct {
	Value     string
	Timestamp int64
	ID        string
}

// Apply writes the signature headers onto h.
func (s Signature) Apply(h http.Header) {
	h.Set(HeaderSignature, s.Value)
	h.Set(HeaderTimestamp, strconv.FormatInt(s.Timestamp, 10))
	h.Set(HeaderID, s.ID)
}

// Sign computes hex(HMAC-SHA256(secret, "<unix>.<payload>")).
func Sign(secret string, payload []byte, now time.Time) (Signature, error) {
	if secret == "" {
		return Signature{}, ErrMissingSecret
	}
	if len(payload) == 0 {
		return Signature{}, ErrInvalidPayload
	}
	ts := now.Unix()
	return Signature{Value: mac(secret, ts, payload), Timestamp: ts, ID: uuid.NewString()}, nil
}

// Verify checks a delivery received at now. Signatures older than maxAge are
// rejected; maxAge <= 0 disables the age check.
func Verify(secret string, payload []byte, h http.Header, maxAge time.Duration, now time.Time) error {
	if secret == "" {
		return ErrMissingSecret
	}
	sig := h.Get(HeaderSignature)
	ts, err := strconv.ParseInt(h.Get(HeaderTimestamp), 10, 64)
	if sig == "" || err != nil {
		return fmt.Errorf("%w: missing signature headers", ErrInvalidSignature)
	}
	if maxAge > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > maxAge || age < -time.Minute {
			return fmt.Errorf("%w: timestamp outside window", ErrInvalidSignature)
		}
	}
	if !hmac.Equal([]byte(sig), []byte(mac(secret, ts, payload))) {
		return ErrInvalidSignature
	}
	return nil
}

func mac(secret string, ts int64, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.", ts)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
