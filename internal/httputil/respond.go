package httputil

import (
	"encoding/json"
	"net/http"

	"msgrelay/internal/errors"
	"msgrelay/internal/tracing"

	"github.com/sirupsen/logrus"
)

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Debug("Failed to encode response body")
	}
}

// WriteError maps err to its HTTP status and writes the standard error body, carrying the
// request id from the context.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatusCode(err)
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	WriteJSON(w, status, errors.ToHTTPResponse(err, tracing.GetRequestID(r.Context())))
}
