package utils

import (
	"crypto/rand"
)

// alphabet holds exactly 64 URL-safe characters so a byte masked with 63 indexes it uniformly.
var alphabet = []byte("_-0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")

const defaultLength = 8

// NewNanoID returns a short random id used for stream sessions and request correlation.
func NewNanoID() string {
	return NewNanoIDSize(defaultLength)
}

// NewNanoIDSize returns a random id of n characters. n <= 0 yields the default length.
func NewNanoIDSize(n int) string {
	if n <= 0 {
		n = defaultLength
	}

	bytes := make([]byte, n)
	// crypto/rand.Read never returns an error on supported platforms
	_, _ = rand.Read(bytes)

	for i := range bytes {
		bytes[i] = alphabet[bytes[i]&63]
	}
	return string(bytes)
}
