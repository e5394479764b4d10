// Package crypto provides webhook signing and secret storage for outbound
// event notifications.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Webhook signature headers attached to every outbound delivery.
const (
	HeaderSignature = "X-Molt-Signature"
	HeaderTimestamp = "X-Molt-Timestamp"
)

// WebhookSigner signs outbound webhook payloads so receivers can verify they
// came from this marketplace and were not replayed.
type WebhookSigner struct {
	Secret string
}

// Headers returns the signature headers for a payload using the current time.
// The signature is HMAC-SHA256(secret, timestamp+"."+body) hex-encoded.
func (s *WebhookSigner) Headers(body []byte) map[string]string {
	return s.HeadersAt(body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp
// (useful for deterministic testing).
func (s *WebhookSigner) HeadersAt(body []byte, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderTimestamp: ts,
		HeaderSignature: sign([]byte(s.Secret), ts, body),
	}
}

// Verify checks a signature against a payload and its timestamp header.
// Comparison is constant time.
func (s *WebhookSigner) Verify(body []byte, timestamp, signature string) bool {
	expected := sign([]byte(s.Secret), timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func sign(key []byte, ts string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (s *WebhookSigner) String() string {
	redacted := "****"
	if len(s.Secret) > 4 {
		redacted = s.Secret[:4] + "****"
	}
	return fmt.Sprintf("WebhookSigner{secret=%s}", redacted)
}
