// Package httpx provides small JSON helpers shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"net/http"
)

// JSON writes payload with the given status code. The encode error is
// returned so callers can log it with their own logger.
func JSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// Decode parses the request body into target, rejecting unknown fields.
func Decode(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
