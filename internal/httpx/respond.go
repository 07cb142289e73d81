// Package httpx holds the JSON response helpers shared by all handlers.
package httpx

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"go-predict/internal/apperr"
)

func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.WithError(err).Error("failed to encode response")
		}
	}
}

// Error maps a service error to its HTTP status. Internal detail is logged
// here and never included in the response body.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError || apperr.IsKind(err, apperr.KindInternal) {
		log.WithFields(log.Fields{
			"path":   r.URL.Path,
			"method": r.Method,
		}).WithError(err).Error("request failed")
	}
	JSON(w, status, map[string]string{"error": apperr.Public(err)})
}
