package billing

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// MidtransSignature is SHA512(order_id + status_code + gross_amount + server_key), hex encoded.
func MidtransSignature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func VerifyMidtransSignature(n MidtransNotification, serverKey string) bool {
	sig := strings.ToLower(strings.TrimSpace(n.SignatureKey))
	if sig == "" || strings.TrimSpace(serverKey) == "" {
		return false
	}
	want := MidtransSignature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	return subtle.ConstantTimeCompare([]byte(sig), []byte(want)) == 1
}
