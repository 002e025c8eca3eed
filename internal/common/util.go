package common

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
)

// MaxIdentifierLen bounds photo, user and key identifiers.
const MaxIdentifierLen = 100

var identifierRe = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// IsValidIdentifier reports whether s is 1 to MaxIdentifierLen letters,
// digits or dashes. Callers trim first.
func IsValidIdentifier(s string) bool {
	return len(s) > 0 && len(s) <= MaxIdentifierLen && identifierRe.MatchString(s)
}

// MakeRandHexString generates a random hexadecimal string of the given size.
// The size parameter specifies the number of random bytes, so the resulting
// string is twice as long.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// GenerateRandByteArray returns size bytes from crypto/rand.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	_, _ = rand.Read(b)
	return b
}

// WipeByteArray overwrites the contents of the provided byte slice with zeros.
// Used for private key material once it has been parsed.
//
// If the slice is nil, the function does nothing.
func WipeByteArray(b []byte) {
	if b == nil {
		return
	}
	for i := range b {
		b[i] = 0
	}
}
