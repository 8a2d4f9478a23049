package snapshot

import (
	"bytes"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"findash/internal/cache"
	"findash/internal/config"
	"findash/internal/handlers/sessions"
	"findash/internal/services/dataloader"
	"findash/internal/services/storage"
	"findash/internal/session"
	"findash/internal/testutil"
	"findash/testdata"
)

const passphrase = "correct horse battery"

func setupTestServer(t *testing.T) (*testutil.TestServer, *session.Session) {
	t.Helper()
	return setupServerWithVault(t, "")
}

// setupServerWithVault starts the routes with a server vault holding
// serverPassphrase, or a locked vault when it is empty
func setupServerWithVault(t *testing.T, serverPassphrase string) (*testutil.TestServer, *session.Session) {
	t.Helper()

	vault, err := storage.NewVault(serverPassphrase)
	require.NoError(t, err)
	loader := dataloader.New(vault, zerolog.Nop())
	store := session.NewStore(0)
	sessions.Initialize(store, loader, cache.NewMemo(64, time.Minute), 1)
	Initialize(config.DefaultTheme(), vault, 1)

	now = func() time.Time { return time.Date(2024, time.July, 1, 9, 30, 0, 0, time.UTC) }
	t.Cleanup(func() { now = time.Now })

	r := chi.NewRouter()
	RegisterRoutes(r)

	tb, _, err := loader.Decode(testdata.SampleCSV, testdata.SampleFilename)
	require.NoError(t, err)
	sess := store.Create(testdata.SampleFilename, tb)

	return testutil.NewTestServer(t, r), sess
}

func restore(t *testing.T, ts *testutil.TestServer, body []byte, headers map[string]string) *http.Response {
	t.Helper()
	return ts.Do(http.MethodPost, "/api/snapshots?filename=restored.json", "application/json", bytes.NewReader(body), headers)
}

func TestExportRestoreRoundtrip(t *testing.T) {
	ts, sess := setupTestServer(t)

	ra := testutil.AssertResponse(t, ts.GET("/api/sessions/"+sess.ID+"/snapshot")).
		StatusOK().
		ContentTypeJSON().
		Header("Content-Disposition", "attachment; filename=findash_snapshot_20240701_093000.json").
		Contains(`"columns":["Date","Amount","Category","Institution","Country","Description"]`).
		Contains(`["2023-01-01T00:00:00.000",2800,"Salary","Santander","Spain","Payroll ACME SL"]`)

	var out sessions.Response
	testutil.AssertResponse(t, restore(t, ts, []byte(ra.Body()), nil)).StatusCreated().JSON(&out)

	require.NotNil(t, out.Session)
	assert.NotEqual(t, sess.ID, out.Session.ID)
	assert.Equal(t, "restored.json", out.Session.Filename)
	assert.Equal(t, sess.Hash, out.Session.Hash)
	assert.Equal(t, 95, out.Session.Rows)
}

func TestSealedExport(t *testing.T) {
	ts, sess := setupTestServer(t)

	resp := ts.Do(http.MethodGet, "/api/sessions/"+sess.ID+"/snapshot", "", nil, map[string]string{
		PassphraseHeader: passphrase,
	})
	ra := testutil.AssertResponse(t, resp).
		StatusOK().
		Header("Content-Disposition", "attachment; filename=findash_snapshot_20240701_093000.json.age").
		Contains("-----BEGIN AGE ENCRYPTED FILE-----")
	sealed := []byte(ra.Body())
	require.True(t, storage.IsEncrypted(sealed))

	t.Run("restore without passphrase", func(t *testing.T) {
		testutil.AssertResponse(t, restore(t, ts, sealed, nil)).
			Status(http.StatusBadRequest).
			Contains("passphrase required")
	})

	t.Run("restore with wrong passphrase", func(t *testing.T) {
		testutil.AssertResponse(t, restore(t, ts, sealed, map[string]string{PassphraseHeader: "not the passphrase"})).
			Status(http.StatusBadRequest).
			Contains("incorrect passphrase")
	})

	t.Run("restore with passphrase", func(t *testing.T) {
		var out sessions.Response
		testutil.AssertResponse(t, restore(t, ts, sealed, map[string]string{PassphraseHeader: passphrase})).
			StatusCreated().
			JSON(&out)
		assert.Equal(t, sess.Hash, out.Session.Hash)
	})
}

func TestServerVaultSealsExport(t *testing.T) {
	const serverPassphrase = "server side secret"
	ts, sess := setupServerWithVault(t, serverPassphrase)

	ra := testutil.AssertResponse(t, ts.GET("/api/sessions/"+sess.ID+"/snapshot")).
		StatusOK().
		ContentType("text/plain").
		Header("Content-Disposition", "attachment; filename=findash_snapshot_20240701_093000.json.age")
	sealed := []byte(ra.Body())
	require.True(t, storage.IsEncrypted(sealed))

	plain, err := storage.OpenWithPassphrase(sealed, serverPassphrase)
	require.NoError(t, err)
	tb, err := dataloader.DecodeSnapshot(plain)
	require.NoError(t, err)
	assert.Equal(t, sess.Hash, tb.Hash())

	t.Run("restore through the server vault", func(t *testing.T) {
		var out sessions.Response
		testutil.AssertResponse(t, restore(t, ts, sealed, nil)).StatusCreated().JSON(&out)
		assert.Equal(t, sess.Hash, out.Session.Hash)
	})

	t.Run("header passphrase takes precedence", func(t *testing.T) {
		testutil.AssertResponse(t, restore(t, ts, sealed, map[string]string{PassphraseHeader: "another passphrase"})).
			APIError(http.StatusBadRequest, "invalid_parameter")
	})
}

func TestSealedExportShortPassphrase(t *testing.T) {
	ts, sess := setupTestServer(t)

	resp := ts.Do(http.MethodGet, "/api/sessions/"+sess.ID+"/snapshot", "", nil, map[string]string{
		PassphraseHeader: "short",
	})
	testutil.AssertResponse(t, resp).Status(http.StatusBadRequest).Contains("at least 8 characters")
}

func TestRestoreErrors(t *testing.T) {
	ts, _ := setupTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{"not json", "Date,Amount\n", http.StatusBadRequest, "decode_error"},
		{"missing amount", `{"columns":["Date"],"index":[0],"data":[["2024-01-01T00:00:00.000"]]}`, http.StatusUnprocessableEntity, "missing_column"},
		{"ragged row", `{"columns":["Date","Amount"],"index":[0],"data":[["2024-01-01T00:00:00.000"]]}`, http.StatusBadRequest, "decode_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertResponse(t, restore(t, ts, []byte(tt.body), nil)).
				APIError(tt.status, tt.kind)
		})
	}
}

func TestExportUnknownSession(t *testing.T) {
	ts, _ := setupTestServer(t)
	testutil.AssertResponse(t, ts.GET("/api/sessions/unknown/snapshot")).Status(http.StatusNotFound)
}

func TestTheme(t *testing.T) {
	ts, _ := setupTestServer(t)

	var theme config.Theme
	testutil.AssertResponse(t, ts.GET("/api/theme")).StatusOK().JSON(&theme)
	assert.Equal(t, config.DefaultTheme(), theme)
}

func TestHealth(t *testing.T) {
	ts, _ := setupTestServer(t)

	var health Health
	testutil.AssertResponse(t, ts.GET("/api/health")).StatusOK().JSON(&health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Sessions)
	assert.NotEmpty(t, health.Version.Version)
}
