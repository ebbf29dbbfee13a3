package status

import (
	"encoding/json"
	"net/http"
)

// apiResponse is the standard envelope for successful responses.
type apiResponse struct {
	Data interface{} `json:"data,omitempty"`
}

// apiErrorResponse is the standard envelope for error responses.
type apiErrorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code and body.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
