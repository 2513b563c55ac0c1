// Package signature computes and checks the checkout completion signature:
// hex(HMAC-SHA256(secret, orderID + "|" + paymentID)).
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares in constant time.
func Verify(secret, orderID, paymentID, sig string) bool {
	expected := Sign(secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(sig))
}
