// Package otp generates one-time login codes.
package otp

import (
	"crypto/rand"
	"fmt"
)

// alphabet deliberately omits look-alike characters (0/O, 1/l/I).
const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghjkmnpqrstuvwxyz23456789"

// Code returns an n-character cryptographically random alphanumeric code.
func Code(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("otp: invalid length %d", n)
	}
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("otp: %w", err)
	}
	out := make([]byte, n)
	for i, b := range raw {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}
