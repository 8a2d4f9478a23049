// Package sessions serves upload, replace and lifecycle routes for the
// per-session transaction table.
package sessions

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"findash/internal/cache"
	"findash/internal/errs"
	apihttp "findash/internal/http"
	"findash/internal/models"
	"findash/internal/services/dataloader"
	"findash/internal/services/metrics"
	"findash/internal/session"
	"findash/testdata"
)

var (
	store       *session.Store
	loader      *dataloader.DataLoader
	memo        *cache.Memo
	metricsSvc  *metrics.Service
	maxUploadMB int
)

// Initialize sets up the sessions package with required dependencies
func Initialize(s *session.Store, l *dataloader.DataLoader, m *cache.Memo, maxUpload int) {
	store = s
	loader = l
	memo = m
	metricsSvc = metrics.New()
	maxUploadMB = maxUpload
}

// RegisterRoutes registers all session routes
func RegisterRoutes(r chi.Router) {
	r.Post("/api/sessions", handleCreate)
	r.Post("/api/sessions/sample", handleCreateSample)
	r.Get("/api/sessions/{id}", handleGet)
	r.Put("/api/sessions/{id}", handleReplace)
	r.Delete("/api/sessions/{id}", handleDelete)
	r.Get("/api/sessions/{id}/options", handleOptions)
}

// Response is the body returned for session create, replace and get
type Response struct {
	Session *session.Session   `json:"session"`
	Report  *dataloader.Report `json:"report,omitempty"`
}

// Store returns the session store the package was initialized with
func Store() *session.Store {
	return store
}

// Current resolves the {id} route parameter to its session
func Current(r *http.Request) (*session.Session, error) {
	return store.Get(chi.URLParam(r, "id"))
}

// Cached memoizes a view of the session's table. Entries are keyed by the
// table hash so a replaced table never serves a stale result.
func Cached[T any](sess *session.Session, view string, params []any, fn func(*models.Table) (T, error)) (T, error) {
	return cache.Compute(memo, cache.Key(sess.Hash, view, params...), func() (T, error) {
		return fn(sess.Table)
	})
}

func handleCreate(w http.ResponseWriter, r *http.Request) {
	filename, tb, report, err := decodeUpload(w, r)
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}

	sess := store.Create(filename, tb)
	log := apihttp.RequestLogger(r)
	log.Info().Str("session", sess.ID).Int("rows", sess.Rows).Msg("session created")

	apihttp.WriteJSON(w, http.StatusCreated, Response{Session: sess, Report: &report})
}

// handleCreateSample opens a session on the bundled demo data
func handleCreateSample(w http.ResponseWriter, r *http.Request) {
	tb, report, err := loader.Decode(testdata.SampleCSV, testdata.SampleFilename)
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}

	sess := store.Create(testdata.SampleFilename, tb)
	apihttp.WriteJSON(w, http.StatusCreated, Response{Session: sess, Report: &report})
}

func handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := Current(r)
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, Response{Session: sess})
}

func handleReplace(w http.ResponseWriter, r *http.Request) {
	// Fail fast on unknown ids before reading the upload
	if _, err := Current(r); err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}

	filename, tb, report, err := decodeUpload(w, r)
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}

	sess, err := store.Replace(chi.URLParam(r, "id"), filename, tb)
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, Response{Session: sess, Report: &report})
}

func handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := store.Delete(chi.URLParam(r, "id")); err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleOptions(w http.ResponseWriter, r *http.Request) {
	sess, err := Current(r)
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}

	opts, _ := Cached(sess, "options", nil, func(tb *models.Table) (models.FilterOptions, error) {
		return metricsSvc.Options(tb), nil
	})
	apihttp.WriteJSON(w, http.StatusOK, opts)
}

// decodeUpload reads the multipart "file" field and decodes it
func decodeUpload(w http.ResponseWriter, r *http.Request) (string, *models.Table, dataloader.Report, error) {
	const op = "upload"
	limit := int64(maxUploadMB) << 20

	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, dataloader.Report{}, errs.Newf(errs.KindInvalidParameter, op, "file exceeds %d MB", maxUploadMB)
		}
		return "", nil, dataloader.Report{}, errs.Wrap(errs.KindInvalidParameter, op, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, dataloader.Report{}, errs.New(errs.KindInvalidParameter, op, `multipart field "file" is required`)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, dataloader.Report{}, errs.Wrap(errs.KindDecode, op, err)
	}

	tb, report, err := loader.Decode(data, header.Filename)
	if err != nil {
		return "", nil, report, err
	}
	return header.Filename, tb, report, nil
}
