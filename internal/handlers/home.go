package handlers

import (
	"encoding/json"
	"net/http"
)

// Home handles GET / with a static greeting.
func Home(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"message": "Hi, what can I help with?",
	})
}
