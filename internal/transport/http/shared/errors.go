// Package shared holds transport helpers used by every handler.
package shared

import (
	"encoding/json"
	"net/http"

	dErrors "attune/pkg/domain-errors"
)

// WriteError translates a domain error into the JSON error envelope. Only
// the error code crosses the wire; messages stay in logs so no filtered
// content can leak through an error response.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(dErrors.ToHTTPStatus(code))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": string(code),
	})
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
