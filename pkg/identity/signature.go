package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Webhook signature headers. The provider signs "id.timestamp.body" with
// HMAC-SHA256 and sends one or more versioned signatures ("v1,<base64>").
const (
	HeaderWebhookID        = "webhook-id"
	HeaderWebhookTimestamp = "webhook-timestamp"
	HeaderWebhookSignature = "webhook-signature"
)

// DefaultTolerance is the accepted clock skew for webhook timestamps.
const DefaultTolerance = 5 * time.Minute

var (
	ErrMissingSignatureHeaders = errors.New("missing webhook signature headers")
	ErrInvalidTimestamp        = errors.New("invalid webhook timestamp")
	ErrTimestampOutOfTolerance = errors.New("webhook timestamp outside tolerance")
	ErrSignatureMismatch       = errors.New("webhook signature mismatch")
)

// SignatureVerifier verifies signed webhook payloads.
type SignatureVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewSignatureVerifier creates a verifier for the given shared secret.
// Secrets are distributed base64-encoded with a "whsec_" prefix; raw
// secrets are accepted as-is.
func NewSignatureVerifier(secret string) *SignatureVerifier {
	key := []byte(secret)
	if trimmed, ok := strings.CutPrefix(secret, "whsec_"); ok {
		if decoded, err := base64.StdEncoding.DecodeString(trimmed); err == nil {
			key = decoded
		}
	}
	return &SignatureVerifier{
		secret:    key,
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
}

// Verify checks the signature headers against the raw body.
// The timestamp must fall within the tolerance window in either direction.
func (v *SignatureVerifier) Verify(id, timestamp, signatureHeader string, body []byte) error {
	if id == "" || timestamp == "" || signatureHeader == "" {
		return ErrMissingSignatureHeaders
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTimestamp, err)
	}

	age := v.now().Sub(time.Unix(ts, 0))
	if age > v.tolerance || age < -v.tolerance {
		return ErrTimestampOutOfTolerance
	}

	expected := v.sign(id, timestamp, body)

	// The header may carry several space-separated signatures during
	// secret rotation; any v1 match passes.
	for _, candidate := range strings.Fields(signatureHeader) {
		value, ok := strings.CutPrefix(candidate, "v1,")
		if !ok {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}

	return ErrSignatureMismatch
}

// sign computes the HMAC-SHA256 over "id.timestamp.body".
func (v *SignatureVerifier) sign(id, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(id))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

// Sign produces a "v1,<base64>" signature for the given message parts.
// Exposed for tests and for local webhook replay tooling.
func (v *SignatureVerifier) Sign(id, timestamp string, body []byte) string {
	return "v1," + base64.StdEncoding.EncodeToString(v.sign(id, timestamp, body))
}
