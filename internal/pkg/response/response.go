// Package response writes the {"success": ..., "message": ..., ...} envelope
// every endpoint answers with.
package response

import (
	"encoding/json"
	"net/http"

	apierrors "github.com/AnshRaj112/sparklink-backend/internal/pkg/errors"
)

// Fields is the payload merged into the envelope next to "success".
type Fields map[string]any

// JSON writes a successful response with the given status code.
func JSON(w http.ResponseWriter, status int, fields Fields) {
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["success"] = true
	write(w, status, body)
}

// OK writes a 200 success response.
func OK(w http.ResponseWriter, fields Fields) {
	JSON(w, http.StatusOK, fields)
}

// Created writes a 201 success response.
func Created(w http.ResponseWriter, fields Fields) {
	JSON(w, http.StatusCreated, fields)
}

// Message writes a 200 success response that only carries a message.
func Message(w http.ResponseWriter, message string) {
	OK(w, Fields{"message": message})
}

// Error writes err as {"success":false,"message":...}. Errors that are not
// *APIError render as a generic internal error.
func Error(w http.ResponseWriter, err error) {
	apiErr := apierrors.AsAPIError(err)
	write(w, apiErr.StatusCode, map[string]any{
		"success": false,
		"message": apiErr.Message,
	})
}

func write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
