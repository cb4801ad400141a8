// Package fingerprint computes stable content fingerprints for exact
// duplicate detection. The fingerprint covers whitespace-normalized content
// plus the canonical scope, so identical text in different scopes yields
// distinct fingerprints.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize trims the text and collapses internal whitespace runs to a
// single space. Case is preserved; duplicate detection is exact-match.
func Normalize(content string) string {
	return strings.Join(strings.Fields(content), " ")
}

// New returns the hex-encoded fingerprint for content within scope.
func New(content, scope string) string {
	h := sha256.New()
	h.Write([]byte(Normalize(content)))
	h.Write([]byte{0})
	h.Write([]byte(scope))
	return hex.EncodeToString(h.Sum(nil))
}
