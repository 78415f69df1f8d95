package httpserver

import (
	"encoding/json"
	"net/http"
)

// UploadResponse is returned after a successful ingestion.
type UploadResponse struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Message string `json:"message,omitempty"`
}

// CleanupResponse reports the outcome of a manual retention sweep.
type CleanupResponse struct {
	DeletedCount int `json:"deleted_count"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status         string `json:"status"`
	TotalObjects   int64  `json:"total_objects"`
	TotalSize      string `json:"total_size"`
	AvailableSpace string `json:"available_space"`
}

// ErrorResponse is the JSON envelope for all error replies.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// WriteJSONResponse encodes data as the response body with the given status.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
	}
}

// WriteErrorResponse writes the standard error envelope.
func WriteErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string) {
	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: errorMsg,
		Code:    statusCode,
	}
	WriteJSONResponse(w, statusCode, response)
}
