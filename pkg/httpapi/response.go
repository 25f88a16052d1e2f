package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/syndicate-project/gateway/internal/logger"
)

// writeJSON writes data as a JSON response, encoding to a buffer first so
// an encoding failure can still produce a clean error response instead of
// a half-written body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error("httpapi: encode response", logger.Err(err))
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
