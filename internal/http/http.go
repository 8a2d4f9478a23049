// Package http holds the JSON response helpers and middleware shared by the
// API handlers.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"findash/internal/errs"
	"findash/internal/logger"
)

// ErrorBody is the JSON shape of every error response
type ErrorBody struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

// Message is a 200 response carrying a placeholder for the presentation
// layer, used for "no data" states that are not errors
type Message struct {
	Message string `json:"message"`
}

var kindMessages = map[errs.Kind]string{
	errs.KindDecode:              "The file could not be read. Upload a CSV, XLS or XLSX export.",
	errs.KindMissingColumn:       "The data is missing a required column.",
	errs.KindInsufficientHistory: "Not enough history for this analysis.",
	errs.KindModelFit:            "The model could not be fitted to this data.",
	errs.KindInvalidParameter:    "Invalid parameter.",
	errs.KindNotFound:            "Not found.",
}

// StatusFor maps an error kind to its HTTP status
func StatusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindDecode, errs.KindInvalidParameter:
		return http.StatusBadRequest
	case errs.KindMissingColumn, errs.KindInsufficientHistory, errs.KindModelFit:
		return http.StatusUnprocessableEntity
	case errs.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{Error: message})
}

// ErrorResponse maps err to a status and fixed message. Domain errors carry
// their detail; anything else is logged and reported as an internal error.
func ErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())

	kind := errs.KindOf(err)
	msg, ok := kindMessages[kind]
	if !ok {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	body := ErrorBody{Error: msg, Kind: string(kind)}
	var de *errs.Error
	if errors.As(err, &de) {
		body.Details = de.Error()
	}
	log.Debug().Err(err).Str("kind", string(kind)).Msg("request rejected")
	WriteJSON(w, StatusFor(kind), body)
}

// QueryInt reads an integer query parameter, returning def when absent
func QueryInt(r *http.Request, name string, def int) (int, error) {
	s := strings.TrimSpace(r.URL.Query().Get(name))
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errs.Newf(errs.KindInvalidParameter, "query", "%s must be an integer, got %q", name, s)
	}
	return v, nil
}

// QueryFloat reads a float query parameter, returning def when absent
func QueryFloat(r *http.Request, name string, def float64) (float64, error) {
	s := strings.TrimSpace(r.URL.Query().Get(name))
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errs.Newf(errs.KindInvalidParameter, "query", "%s must be a number, got %q", name, s)
	}
	return v, nil
}

// RequestLogger returns the request-scoped logger
func RequestLogger(r *http.Request) zerolog.Logger {
	return logger.FromContext(r.Context())
}
