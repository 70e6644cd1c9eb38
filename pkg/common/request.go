package common

import (
	"io"
	"net/http"
	"strings"
)

// MaxCommandBodySize bounds the plain-text command bodies accepted by the device.
const MaxCommandBodySize = 64 * 1024

// ReadTextBody reads a trimmed plain-text request body. On failure it
// writes a rejected envelope and returns the error.
func ReadTextBody(w http.ResponseWriter, r *http.Request) (string, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxCommandBodySize))
	if err != nil {
		WriteRejected(w, "Invalid request body: %v", err)
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}
