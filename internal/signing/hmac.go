// Package signing implements the HMAC-SHA256 schemes used on both sides of
// the relay: timestamped signatures on inbound provider webhooks and plain
// body signatures on outbound deliveries. Signatures are always computed over
// the raw bytes as sent on the wire, never over a re-serialized document.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const prefix = "sha256="

// Sign computes the outbound delivery signature over the exact serialized
// body: "sha256=" + hex(HMAC-SHA256(secret, payload)).
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return prefix + hex.EncodeToString(mac.Sum(nil))
}

func Verify(secret string, payload []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, payload)), []byte(signature))
}

// SignTimestamped binds a unix timestamp into the signature, the scheme the
// reference provider uses on inbound webhooks: the MAC covers
// "<timestamp>.<raw body>".
func SignTimestamped(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return prefix + hex.EncodeToString(mac.Sum(nil))
}

func VerifyTimestamped(secret string, timestamp int64, payload []byte, signature string) bool {
	return hmac.Equal([]byte(SignTimestamped(secret, timestamp, payload)), []byte(signature))
}
