// internal/respond/respond.go
//
// JSON response helpers shared by middleware and components.
//
// Every API reply is a JSON object.  Failures carry `ok:false` and an
// `error` message so clients can branch on one field regardless of status
// code.
package respond

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// JSON writes v with status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Debugw("write json", "err", err)
	}
}

// OK writes {"ok":true} merged with fields.
func OK(w http.ResponseWriter, fields map[string]any) {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["ok"] = true
	JSON(w, http.StatusOK, out)
}

// Error writes {"ok":false,"error":msg}.
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]any{"ok": false, "error": msg})
}

// Decode reads a JSON body into v, rejecting unknown fields and anything
// larger than 1 MiB.
func Decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
