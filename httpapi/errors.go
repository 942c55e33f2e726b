package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"pkt.systems/swissblade/internal/deploy"
	"pkt.systems/swissblade/internal/relay"
	"pkt.systems/swissblade/schema"
)

var badRequestErrors = []error{
	schema.ErrInvalidRequest,
	schema.ErrURLRequired,
	schema.ErrInvalidURL,
	schema.ErrInvalidMethod,
	schema.ErrInvalidTheme,
	schema.ErrInvalidLanguage,
	schema.ErrInvalidPanicKey,
	schema.ErrInvalidOutcome,
	schema.ErrEmptyCommand,
	schema.ErrHostRequired,
	schema.ErrInvalidPort,
}

var notFoundErrors = []error{
	schema.ErrTabNotFound,
	schema.ErrUnknownTool,
	schema.ErrToolUnavailable,
}

// statusFor maps a domain error to an HTTP status.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr), errors.Is(err, schema.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, schema.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, relay.ErrResponseTooLarge):
		return http.StatusBadGateway
	case errors.Is(err, deploy.ErrNoTerminal):
		return http.StatusServiceUnavailable
	}
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return http.StatusNotFound
		}
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w: request body exceeds %d bytes", schema.ErrPayloadTooLarge, maxErr.Limit)
		}
		return fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err)
	}
	return nil
}

// readBody returns the raw request body, empty when none was sent.
func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, fmt.Errorf("%w: request body exceeds %d bytes", schema.ErrPayloadTooLarge, maxErr.Limit)
		}
		return nil, fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]any{"error": err.Error()})
}
