package common

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Envelope is the {success, message, data} body returned by the command endpoint
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Envelope) IsSuccess() bool {
	return e.Success
}

// Error implements the error interface
func (e *Envelope) Error() string {
	if e.IsSuccess() {
		return ""
	}
	return fmt.Sprintf("rejected: %s", e.Message)
}

// DecodeEnvelope parses an envelope body. A body without a success field is invalid.
func DecodeEnvelope(body []byte) (*Envelope, error) {
	var raw struct {
		Success *bool           `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if raw.Success == nil {
		return nil, fmt.Errorf("envelope missing success field")
	}
	env := &Envelope{
		Success: *raw.Success,
		Message: raw.Message,
	}
	if len(raw.Data) > 0 && string(raw.Data) != "null" {
		env.Data = raw.Data
	}
	return env, nil
}

// WriteEnvelope writes an envelope response to the http.ResponseWriter
func WriteEnvelope[T any](w http.ResponseWriter, success bool, message string, data T) {
	WriteEnvelopeStatus(w, http.StatusOK, success, message, data)
}

// WriteEnvelopeStatus is WriteEnvelope with an explicit HTTP status.
func WriteEnvelopeStatus[T any](w http.ResponseWriter, status int, success bool, message string, data T) {
	payload, err := json.Marshal(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(&Envelope{Success: success, Message: message, Data: payload}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func WriteSuccess(w http.ResponseWriter, message string) {
	WriteEnvelope[any](w, true, message, nil)
}

func WriteRejected(w http.ResponseWriter, format string, a ...any) {
	WriteEnvelope[any](w, false, fmt.Sprintf(format, a...), nil)
}

// WriteText writes a plain-text response body
func WriteText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}
