package web

import (
	"encoding/json"
	"net/http"
)

// writeJSON writes a JSON response with the specified status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// writeError writes a standard error JSON response.
func writeError(w http.ResponseWriter, statusCode int, message string) error {
	return writeJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// decodeJSON decodes a request body of at most 64 KiB into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	return dec.Decode(v)
}
