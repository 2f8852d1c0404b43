package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	app_errors "github.com/yusuftnc/qchat/internal/errors"
)

// This file contains the response envelope shared by every route and the
// helpers that write it.

// Envelope is the body of every non-streamed response.
type Envelope struct {
	Status bool        `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// respondWithError maps business-layer errors to HTTP status codes and writes
// a {status:false} envelope.
func respondWithError(w http.ResponseWriter, err error) {
	var statusCode int
	var message string

	switch {
	case errors.Is(err, app_errors.ErrValidation):
		statusCode = http.StatusBadRequest
		// Validation messages are already descriptive.
		message = err.Error()
	case errors.Is(err, app_errors.ErrUnauthorized):
		statusCode = http.StatusUnauthorized
		message = "Invalid or missing API key."
	case errors.Is(err, app_errors.ErrNotFound):
		statusCode = http.StatusNotFound
		message = "The requested resource was not found."
	case errors.Is(err, app_errors.ErrTimeout):
		statusCode = http.StatusGatewayTimeout
		message = "The model server did not answer in time."
	case errors.Is(err, app_errors.ErrTransport), errors.Is(err, app_errors.ErrShape):
		statusCode = http.StatusBadGateway
		message = "The model server could not handle the request."
	default:
		statusCode = http.StatusInternalServerError
		message = "An unexpected internal server error occurred."
	}

	// The detailed error is logged; the client gets the generic message.
	slog.Warn("Responding with error", "status_code", statusCode, "client_message", message, "internal_error", err)

	respondWithJSON(w, statusCode, Envelope{Status: false, Error: message})
}

// respondWithData writes a successful envelope around data.
func respondWithData(w http.ResponseWriter, data interface{}) {
	respondWithJSON(w, http.StatusOK, Envelope{Status: true, Data: data})
}

// respondWithJSON is a low-level helper for marshaling a payload to JSON
// and writing it to the http.ResponseWriter with a given status code.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}

// writeStreamLine writes one NDJSON line and flushes it. A write failure
// means the client has disconnected.
func writeStreamLine(w http.ResponseWriter, line []byte) error {
	if _, err := fmt.Fprintf(w, "%s\n", line); err != nil {
		return fmt.Errorf("failed to write data to stream: %w", err)
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// sendStreamError ends a stream that already started with an error line the
// client recognizes as a failed answer.
func sendStreamError(w http.ResponseWriter, err error) {
	slog.Warn("Sending stream error to client", "error", err)
	payload, _ := json.Marshal(map[string]interface{}{"error": "The model server stopped while answering.", "done": true})
	if werr := writeStreamLine(w, payload); werr != nil {
		slog.Warn("Failed to write stream error, client might have disconnected", "error", werr)
	}
}
