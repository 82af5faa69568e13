package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPaymentSignature checks the signature the checkout widget returns
// after a payment, computed over "order_id|payment_id" with the key secret.
func VerifyPaymentSignature(orderID, paymentID, signature, keySecret string) bool {
	if orderID == "" || paymentID == "" || keySecret == "" {
		return false
	}
	return equalHex(Sign([]byte(orderID+"|"+paymentID), keySecret), signature)
}

// VerifyWebhookSignature checks X-Razorpay-Signature against the raw body.
func VerifyWebhookSignature(body []byte, signature, webhookSecret string) bool {
	if len(body) == 0 || webhookSecret == "" {
		return false
	}
	return equalHex(Sign(body, webhookSecret), signature)
}

func equalHex(expected, got string) bool {
	got = strings.ToLower(strings.TrimSpace(got))
	if got == "" {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(got))
}
