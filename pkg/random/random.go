// Package random generates cryptographically secure identifiers for sessions,
// authorization codes, and tokens.
package random

import (
	"crypto/rand"
	"fmt"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// String returns a random alphanumeric string of length n. It panics only if
// the system entropy source is unavailable, which is unrecoverable.
func String(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("random: entropy source unavailable: %v", err))
	}
	for i, b := range buf {
		buf[i] = alphanumeric[int(b)%len(alphanumeric)]
	}
	return string(buf)
}

// Hex returns n random bytes hex-encoded.
func Hex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate random bytes: %w", err)
	}
	return fmt.Sprintf("%x", buf), nil
}
