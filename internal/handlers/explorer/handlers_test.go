package explorer

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"findash/internal/cache"
	"findash/internal/handlers/sessions"
	"findash/internal/models"
	"findash/internal/services/dataloader"
	"findash/internal/services/storage"
	"findash/internal/session"
	"findash/internal/testutil"
	"findash/testdata"
)

func setupTestServer(t *testing.T) (*testutil.TestServer, string) {
	t.Helper()

	vault, err := storage.NewVault("")
	require.NoError(t, err)
	loader := dataloader.New(vault, zerolog.Nop())
	store := session.NewStore(0)
	sessions.Initialize(store, loader, cache.NewMemo(64, time.Minute), 5)

	r := chi.NewRouter()
	RegisterRoutes(r)

	tb, _, err := loader.Decode(testdata.SampleCSV, testdata.SampleFilename)
	require.NoError(t, err)
	sess := store.Create(testdata.SampleFilename, tb)

	return testutil.NewTestServer(t, r), sess.ID
}

func TestTransactionsDefaultPage(t *testing.T) {
	ts, id := setupTestServer(t)

	var page Page
	testutil.AssertResponse(t, ts.GET("/api/sessions/"+id+"/transactions")).StatusOK().ContentTypeJSON().JSON(&page)

	assert.Equal(t, 95, page.Count)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 25, page.PerPage)
	assert.Equal(t, 4, page.TotalPages)
	assert.False(t, page.Empty)
	require.Len(t, page.Rows, 25)
	assert.Equal(t, []string{"Date", "Amount", "Category", "Institution", "Country", "Description"}, page.Columns)

	// newest first
	assert.Equal(t, "2024-06-21", page.Rows[0].Date)
	assert.Equal(t, "-174.93", page.Rows[0].Amount.String())
	for i := 1; i < len(page.Rows); i++ {
		assert.GreaterOrEqual(t, page.Rows[i-1].Date, page.Rows[i].Date)
	}
}

func TestTransactionsLastPage(t *testing.T) {
	ts, id := setupTestServer(t)

	var page Page
	resp := ts.GETWithQuery("/api/sessions/"+id+"/transactions", url.Values{"page": {"4"}, "per_page": {"25"}})
	testutil.AssertResponse(t, resp).StatusOK().JSON(&page)

	assert.Len(t, page.Rows, 20)
	assert.Equal(t, "2023-01-01", page.Rows[len(page.Rows)-1].Date)
}

func TestTransactionsFilters(t *testing.T) {
	ts, id := setupTestServer(t)

	tests := []struct {
		name  string
		query url.Values
		count int
	}{
		{"text ignores case", url.Values{"q": {"MERCADONA"}}, 18},
		{"category", url.Values{"category": {"Refund"}}, 4},
		{"institution and category", url.Values{"institution": {"Revolut"}, "category": {"Travel"}}, 1},
		{"amount range", url.Values{"min": {"-1000"}, "max": {"-900"}}, 18},
		{"date range", url.Values{"start": {"2024-06-01"}, "end": {"2024-06-30"}}, 5},
		{"multi-select", url.Values{"categories": {"Refund", "Travel"}}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var page Page
			testutil.AssertResponse(t, ts.GETWithQuery("/api/sessions/"+id+"/transactions", tt.query)).StatusOK().JSON(&page)
			assert.Equal(t, tt.count, page.Count)
		})
	}
}

func TestTransactionsEmpty(t *testing.T) {
	ts, id := setupTestServer(t)

	resp := ts.GETWithQuery("/api/sessions/"+id+"/transactions", url.Values{"q": {"no such payee"}})
	testutil.AssertResponse(t, resp).
		StatusOK().
		Contains(`"empty":true`).
		Contains(`"rows":[]`).
		Contains(`"count":0`).
		Contains(EmptyMessage)
}

func TestTransactionsInvalidParameters(t *testing.T) {
	ts, id := setupTestServer(t)

	tests := []struct {
		name  string
		query url.Values
	}{
		{"page not a number", url.Values{"page": {"two"}}},
		{"page zero", url.Values{"page": {"0"}}},
		{"per_page too large", url.Values{"per_page": {"10000"}}},
		{"bad date", url.Values{"start": {"yesterday"}}},
		{"inverted amounts", url.Values{"min": {"10"}, "max": {"1"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.GETWithQuery("/api/sessions/"+id+"/transactions", tt.query)
			testutil.AssertResponse(t, resp).Status(http.StatusBadRequest).Contains("invalid_parameter")
		})
	}
}

func TestBuildPageKeepsSchema(t *testing.T) {
	tb := models.NewTable([]models.Transaction{
		testutil.Tx(t, "2024-01-02", "-1.50", "Food", "Bakery"),
	}, models.Schema{HasCategory: true, HasDescription: true})

	page := buildPage(tb, 1, 10)
	assert.Equal(t, []string{"Date", "Amount", "Category", "Description"}, page.Columns)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "-1.5", page.Rows[0].Amount.String())
}
