// Package webhook verifies and parses Whop webhook deliveries into raw
// interaction events, with duplicate-delivery tracking.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader is the header carrying the hex-encoded HMAC of the body.
const SignatureHeader = "X-Whop-Signature"

// VerifySignature checks the hex-encoded HMAC-SHA256 signature of a payload.
// The comparison is constant-time. An optional "sha256=" prefix on the
// signature is accepted.
func VerifySignature(payload []byte, signature, secret string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expected)
}

// Sign computes the hex-encoded HMAC-SHA256 signature for a payload.
// Used by tests and local tooling to produce valid deliveries.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
