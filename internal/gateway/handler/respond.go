package handler

import (
	"encoding/json"
	"net/http"

	"ultraflow/internal/gateway/service/flowchart"
	"ultraflow/internal/util/jsonutil"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := jsonutil.MarshalNoEscape(v)
	if err != nil {
		http.Error(w, `{"error":"internal_error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

// statusFor maps a generation failure to an HTTP status. Timeouts are
// reported as 500 like every other backend failure.
func statusFor(err error) (int, string) {
	cat, code := flowchart.Classify(err)
	if cat == flowchart.CategoryInvalid {
		return http.StatusBadRequest, code
	}
	return http.StatusInternalServerError, code
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	return dec.Decode(v)
}

const maxBodyBytes = 1 << 20
