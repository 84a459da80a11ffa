package api

import (
	"net/http"
	"strings"
)

var (
	AllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	AllowedHeaders = []string{"Content-Type"}
)

// SetCORSHeaders opens the response to any origin. The map front-end is
// hosted separately and calls the API cross-origin.
func SetCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", strings.Join(AllowedMethods, ", "))
	h.Set("Access-Control-Allow-Headers", strings.Join(AllowedHeaders, ", "))
}

// Preflight answers OPTIONS on any path with an empty 200.
func Preflight(w http.ResponseWriter, r *http.Request) {
	SetCORSHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
}
