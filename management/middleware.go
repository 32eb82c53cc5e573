package management

import (
	"fmt"
	"net/http"
)

// Validation error struct for returning to the UI client.
type managementError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func (m *managementError) Error() string {
	return m.Message
}

// Validation error HTTP response JSON for returning to the UI client.
type managementErrorResponse struct {
	Success bool              `json:"success,omitempty"`
	Errors  []managementError `json:"errors,omitempty"`
}

// writeHTTPErrorResponse will respond to the UI client with basic HTTP JSON
// payloads carrying validation failure information.
func writeHTTPErrorResponse(w http.ResponseWriter, status int, errResp managementError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(managementErrorResponse{
		Success: false,
		Errors:  []managementError{errResp},
	})
	// we have already written the header, so write a basic error response if unable to encode the error
	if err != nil {
		http.Error(w, fmt.Sprintf("%d %s", status, http.StatusText(status)), status)
	}
}

func writeJSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
