// Package signature validates gateway-issued payment proofs.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the expected payment proof for a gateway order/payment pair:
// hex-encoded HMAC-SHA256 over "<gatewayOrderID>|<gatewayPaymentID>".
func Sign(gatewayOrderID, gatewayPaymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares a client-supplied signature against the expected one
// in constant time.
func Verify(candidate, expected string) bool {
	return hmac.Equal([]byte(candidate), []byte(expected))
}
