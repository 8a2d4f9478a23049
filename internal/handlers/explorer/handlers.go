package explorer

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"findash/internal/errs"
	"findash/internal/handlers/sessions"
	apihttp "findash/internal/http"
	"findash/internal/models"
	"findash/internal/services/search"
)

const (
	defaultPerPage = 25
	maxPerPage     = 500
)

// EmptyMessage is shown when the filters leave no rows
const EmptyMessage = "No transactions match the current filters."

// RegisterRoutes registers all explorer routes
func RegisterRoutes(r chi.Router) {
	r.Get("/api/sessions/{id}/transactions", handleTransactions)
}

// Row is one transaction as shown in the explorer table
type Row struct {
	Date        string      `json:"date"`
	Amount      json.Number `json:"amount"`
	Category    string      `json:"category,omitempty"`
	Institution string      `json:"institution,omitempty"`
	Country     string      `json:"country,omitempty"`
	Description string      `json:"description,omitempty"`
}

// Page is a page of filtered rows, newest first
type Page struct {
	Rows       []Row    `json:"rows"`
	Columns    []string `json:"columns"`
	Count      int      `json:"count"`
	Page       int      `json:"page"`
	PerPage    int      `json:"per_page"`
	TotalPages int      `json:"total_pages"`
	Empty      bool     `json:"empty"`
	Message    string   `json:"message,omitempty"`
}

func handleTransactions(w http.ResponseWriter, r *http.Request) {
	sess, err := sessions.Current(r)
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}

	criteria, err := search.FromValues(r.URL.Query())
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}
	page, err := apihttp.QueryInt(r, "page", 1)
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}
	perPage, err := apihttp.QueryInt(r, "per_page", defaultPerPage)
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}
	if page < 1 || perPage < 1 || perPage > maxPerPage {
		apihttp.ErrorResponse(w, r, errs.Newf(errs.KindInvalidParameter, "transactions",
			"page must be at least 1 and per_page between 1 and %d", maxPerPage))
		return
	}

	filtered, _ := sessions.Cached(sess, "transactions", []any{criteria.Key()}, func(tb *models.Table) (*models.Table, error) {
		return search.Apply(tb, criteria).SortByDateDesc(), nil
	})

	apihttp.WriteJSON(w, http.StatusOK, buildPage(filtered, page, perPage))
}

func buildPage(filtered *models.Table, page, perPage int) Page {
	result := Page{
		Rows:       []Row{},
		Columns:    filtered.Schema.Columns(),
		Count:      filtered.Len(),
		Page:       page,
		PerPage:    perPage,
		TotalPages: filtered.TotalPages(perPage),
	}
	if filtered.IsEmpty() {
		result.Empty = true
		result.Message = EmptyMessage
		return result
	}

	for _, t := range filtered.Paginate(page, perPage).Transactions {
		result.Rows = append(result.Rows, Row{
			Date:        t.Date.Format(models.DateLayout),
			Amount:      json.Number(t.Amount.String()),
			Category:    t.Category,
			Institution: t.Institution,
			Country:     t.Country,
			Description: t.Description,
		})
	}
	return result
}
