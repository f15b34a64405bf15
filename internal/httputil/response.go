// Package httputil holds the JSON response helpers shared by the /debug/
// endpoints.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/banshee-data/pulse.replay/internal/monitoring"
)

// WriteJSON writes data as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("failed to encode json response: %v", err)
	}
}

// WriteJSONError writes {"error": msg} with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// WriteError reports err as 404 when it matches one of notFound and as 500
// otherwise.
func WriteError(w http.ResponseWriter, err error, notFound ...error) {
	WriteJSONError(w, StatusFor(err, notFound...), err.Error())
}

// StatusFor maps err to an HTTP status.
func StatusFor(err error, notFound ...error) int {
	for _, target := range notFound {
		if errors.Is(err, target) {
			return http.StatusNotFound
		}
	}
	return http.StatusInternalServerError
}

// MethodNotAllowed writes a 405 response.
func MethodNotAllowed(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}
