package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// SignPayload returns the lower-case hex HMAC-SHA256 of body.
func SignPayload(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks a webhook signature header against the raw body.
// The header is hex, optionally prefixed with "sha256=".
func VerifySignature(body []byte, header, secret string) bool {
	if secret == "" {
		return false
	}
	got := strings.TrimSpace(header)
	if len(got) >= len(signaturePrefix) && strings.EqualFold(got[:len(signaturePrefix)], signaturePrefix) {
		got = got[len(signaturePrefix):]
	}
	provided, err := hex.DecodeString(got)
	if err != nil || len(provided) != sha256.Size {
		return false
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hmac.Equal(provided, h.Sum(nil))
}
