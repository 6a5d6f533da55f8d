package middleware

import "net/http"

// SetCORSHeaders writes the permissive CORS headers used by every
// response from the gateway.
func SetCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
}

// CORS applies permissive CORS headers to all responses.
func CORS() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			SetCORSHeaders(w)
			next.ServeHTTP(w, r)
		})
	}
}

// OptionsHandler answers CORS preflight requests with 204.
func OptionsHandler(w http.ResponseWriter, _ *http.Request) {
	SetCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}
