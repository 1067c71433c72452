package security

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashEmail gives anonymous shoppers a stable key without storing the address.
func HashEmail(email string) string {
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(h[:])
}

func HashPayload(body []byte) string {
	h := sha256.Sum256(body)
	return hex.EncodeToString(h[:])
}

// HashParts joins parts with "|" and hashes the result.
func HashParts(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}
