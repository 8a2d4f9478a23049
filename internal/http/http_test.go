package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"findash/internal/errs"
	"findash/internal/logger"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind errs.Kind
		want int
	}{
		{errs.KindDecode, http.StatusBadRequest},
		{errs.KindInvalidParameter, http.StatusBadRequest},
		{errs.KindMissingColumn, http.StatusUnprocessableEntity},
		{errs.KindInsufficientHistory, http.StatusUnprocessableEntity},
		{errs.KindModelFit, http.StatusUnprocessableEntity},
		{errs.KindNotFound, http.StatusNotFound},
		{"", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.kind))
		})
	}
}

func TestErrorResponseDomainError(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/x/forecast", nil)

	ErrorResponse(rr, req, errs.New(errs.KindInsufficientHistory, "forecast", "need at least 6 months, have 3"))

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body ErrorBody
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "Not enough history for this analysis.", body.Error)
	assert.Equal(t, "insufficient_history", body.Kind)
	assert.Equal(t, "forecast: need at least 6 months, have 3", body.Details)
}

func TestErrorResponseInternal(t *testing.T) {
	buf := &bytes.Buffer{}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logger.WithContext(req.Context(), logger.NewWithWriter(buf)))

	ErrorResponse(rr, req, errors.New("disk on fire"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "disk on fire")
	assert.Contains(t, buf.String(), "disk on fire")
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?months=12&bad=x", nil)

	v, err := QueryInt(req, "months", 6)
	require.NoError(t, err)
	assert.Equal(t, 12, v)

	v, err = QueryInt(req, "missing", 6)
	require.NoError(t, err)
	assert.Equal(t, 6, v)

	_, err = QueryInt(req, "bad", 6)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestQueryFloat(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?contamination=0.05&bad=abc", nil)

	v, err := QueryFloat(req, "contamination", 0.1)
	require.NoError(t, err)
	assert.Equal(t, 0.05, v)

	_, err = QueryFloat(req, "bad", 0.1)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestLoggerMiddleware(t *testing.T) {
	buf := &bytes.Buffer{}
	h := middleware.RequestID(Logger(logger.NewWithWriter(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rl := RequestLogger(r)
		rl.Info().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	out := buf.String()
	assert.Contains(t, out, "inside")
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"path":"/api/health"`)
	assert.Contains(t, out, `"request_id":`)
}

func TestRecovery(t *testing.T) {
	buf := &bytes.Buffer{}
	h := Recovery(logger.NewWithWriter(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, buf.String(), "panic recovered")
}
