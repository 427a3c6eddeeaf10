// Package httpx provides shared HTTP response helpers and middleware.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/nicktill/facilityobs/pkg/logging"
)

// RespondJSON writes a JSON response with the given status code and data.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Warnf("Failed to encode JSON response: %v", err)
	}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RespondError writes an error response with the given status code and error message.
func RespondError(w http.ResponseWriter, status int, err error) {
	response := ErrorResponse{
		Error:   http.StatusText(status),
		Message: err.Error(),
	}
	RespondJSON(w, status, response)
}

// RespondErrorString writes an error response with the given status code and error message string.
func RespondErrorString(w http.ResponseWriter, status int, message string) {
	response := ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	}
	RespondJSON(w, status, response)
}

// RespondText writes a plain-text body. Device firmware parses these bare values.
func RespondText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		logging.Warnf("Failed to write text response: %v", err)
	}
}

// DecodeJSON decodes a request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
