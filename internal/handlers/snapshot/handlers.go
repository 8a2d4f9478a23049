// Package snapshot exports and restores session tables as split JSON, and
// serves the small informational routes.
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"findash/internal/config"
	"findash/internal/errs"
	"findash/internal/handlers/sessions"
	apihttp "findash/internal/http"
	"findash/internal/services/dataloader"
	"findash/internal/services/storage"
	"findash/internal/version"
)

// PassphraseHeader carries the optional passphrase that seals an export or
// opens an encrypted restore. Without it the server vault is used when it
// holds a passphrase.
const PassphraseHeader = "X-Snapshot-Passphrase"

var (
	theme       config.Theme
	vault       *storage.Vault
	maxUploadMB int
	now         = time.Now
)

// Initialize sets up the snapshot package with required dependencies
func Initialize(t config.Theme, v *storage.Vault, maxUpload int) {
	theme = t
	vault = v
	maxUploadMB = maxUpload
}

// RegisterRoutes registers the snapshot and informational routes
func RegisterRoutes(r chi.Router) {
	r.Get("/api/sessions/{id}/snapshot", handleExport)
	r.Post("/api/snapshots", handleRestore)
	r.Get("/api/theme", handleTheme)
	r.Get("/api/health", handleHealth)
}

// Health is the body of the health route
type Health struct {
	Status   string       `json:"status"`
	Sessions int          `json:"sessions"`
	Version  version.Info `json:"version"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	apihttp.WriteJSON(w, http.StatusOK, Health{
		Status:   "ok",
		Sessions: sessions.Store().Len(),
		Version:  version.Get(),
	})
}

func handleTheme(w http.ResponseWriter, r *http.Request) {
	apihttp.WriteJSON(w, http.StatusOK, theme)
}

// handleExport streams the session table as a download. The snapshot is
// sealed as armored age with the header passphrase, or else with the server
// vault when it is unlocked.
func handleExport(w http.ResponseWriter, r *http.Request) {
	sess, err := sessions.Current(r)
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}

	data, err := dataloader.EncodeSnapshot(sess.Table)
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}

	filename := fmt.Sprintf("findash_snapshot_%s.json", now().Format("20060102_150405"))
	contentType := "application/json"

	sealed := true
	switch pass := r.Header.Get(PassphraseHeader); {
	case pass != "":
		data, err = storage.SealWithPassphrase(data, pass, true)
	case vault.IsUnlocked():
		data, err = vault.Seal(data, true)
	default:
		sealed = false
	}
	if err != nil {
		apihttp.ErrorResponse(w, r, passphraseError("snapshot", err))
		return
	}
	if sealed {
		filename += ".age"
		contentType = "text/plain; charset=utf-8"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleRestore opens a new session from a snapshot body
func handleRestore(w http.ResponseWriter, r *http.Request) {
	const op = "restore"

	r.Body = http.MaxBytesReader(w, r.Body, int64(maxUploadMB)<<20)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apihttp.ErrorResponse(w, r, errs.Newf(errs.KindInvalidParameter, op, "snapshot exceeds %d MB", maxUploadMB))
			return
		}
		apihttp.ErrorResponse(w, r, errs.Wrap(errs.KindDecode, op, err))
		return
	}

	if storage.IsEncrypted(data) {
		switch pass := r.Header.Get(PassphraseHeader); {
		case pass != "":
			data, err = storage.OpenWithPassphrase(data, pass)
		case vault.IsUnlocked():
			data, err = vault.Open(data)
		default:
			apihttp.ErrorResponse(w, r, errs.New(errs.KindInvalidParameter, op, "snapshot is encrypted; passphrase required"))
			return
		}
		if err != nil {
			apihttp.ErrorResponse(w, r, passphraseError(op, err))
			return
		}
	}

	tb, err := dataloader.DecodeSnapshot(data)
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}

	filename := strings.TrimSpace(r.URL.Query().Get("filename"))
	if filename == "" {
		filename = "snapshot.json"
	}

	sess := sessions.Store().Create(filename, tb)
	log := apihttp.RequestLogger(r)
	log.Info().Str("session", sess.ID).Int("rows", sess.Rows).Msg("snapshot restored")

	apihttp.WriteJSON(w, http.StatusCreated, sessions.Response{Session: sess})
}

// passphraseError classifies vault failures for the client
func passphraseError(op string, err error) error {
	switch {
	case errors.Is(err, storage.ErrIncorrectPassphrase):
		return errs.New(errs.KindInvalidParameter, op, "incorrect passphrase")
	case errors.Is(err, storage.ErrPassphraseTooShort):
		return errs.Newf(errs.KindInvalidParameter, op, "passphrase must be at least %d characters", storage.MinPassphraseLength)
	default:
		return errs.Wrap(errs.KindDecode, op, err)
	}
}
