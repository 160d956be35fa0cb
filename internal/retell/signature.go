package retell

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Retell-Signature"

// Sign returns the hex HMAC-SHA256 of body under key.
func Sign(key, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature against the raw body. It returns false
// when no verification key is configured: the signature can't be validated,
// and callers must treat that as a rejection.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	return VerifySignature(c.verifyKey, body, signature)
}

// VerifySignature is the key-explicit form of Client.VerifySignature.
func VerifySignature(key, body []byte, signature string) bool {
	if len(key) == 0 {
		return false
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	expected := Sign(key, body)
	return hmac.Equal([]byte(signature), []byte(expected))
}
