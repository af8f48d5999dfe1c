package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the hex HMAC-SHA256 of message under secret
func Sign(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignReturnCallback produces the signature the gateway attaches to the
// buyer's checkout return: HMAC over "orderRef|paymentRef".
func SignReturnCallback(secret, orderRef, paymentRef string) string {
	return Sign(secret, []byte(orderRef+"|"+paymentRef))
}

// VerifyReturnCallback checks the checkout return signature in constant time
func VerifyReturnCallback(secret, orderRef, paymentRef, signature string) bool {
	return verify(SignReturnCallback(secret, orderRef, paymentRef), signature)
}

// VerifyWebhookSignature checks a webhook signature computed over the raw body
func VerifyWebhookSignature(secret string, rawBody []byte, signature string) bool {
	return verify(Sign(secret, rawBody), signature)
}

func verify(expected, signature string) bool {
	signature = strings.ToLower(strings.TrimSpace(signature))
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}
