package middleware

import (
	"encoding/json"
	"net/http"
)

// rejection mirrors the handler error envelope so clients read one shape
// whether a request was refused here or by a handler.
type rejection struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func reject(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rejection{Error: msg, Code: code})
}
