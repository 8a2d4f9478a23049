package dashboard

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"findash/internal/handlers/sessions"
	apihttp "findash/internal/http"
	"findash/internal/models"
	"findash/internal/services/aggregate"
	"findash/internal/services/metrics"
	"findash/internal/services/search"
)

// EmptyMessage is shown when a filter leaves no rows
const EmptyMessage = "No transactions match the current filters."

var metricsSvc *metrics.Service

// Initialize sets up the dashboard package with required dependencies
func Initialize(m *metrics.Service) {
	metricsSvc = m
}

// RegisterRoutes registers all dashboard routes
func RegisterRoutes(r chi.Router) {
	r.Get("/api/sessions/{id}/summary", handleSummary)
	r.Get("/api/sessions/{id}/monthly", handleMonthly)
	r.Get("/api/sessions/{id}/groups/{key}", handleGroups)
	r.Get("/api/sessions/{id}/institutions/{name}/monthly", handleInstitutionMonthly)
}

// MonthlyResponse is the monthly series with an empty-result marker
type MonthlyResponse struct {
	models.MonthlySeries
	Empty   bool   `json:"empty"`
	Message string `json:"message,omitempty"`
}

// handleSummary serves the KPIs, optionally over a filtered subset
func handleSummary(w http.ResponseWriter, r *http.Request) {
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

	summary, _ := sessions.Cached(sess, "summary", []any{criteria.Key()}, func(tb *models.Table) (models.Summary, error) {
		return metricsSvc.Summary(search.Apply(tb, criteria)), nil
	})
	apihttp.WriteJSON(w, http.StatusOK, summary)
}

// handleMonthly serves the monthly series. The institution and category
// parameters are repeatable and select any of the given values.
func handleMonthly(w http.ResponseWriter, r *http.Request) {
	sess, err := sessions.Current(r)
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}
	criteria, err := monthlyCriteria(r.URL.Query())
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}

	resp, _ := sessions.Cached(sess, "monthly", []any{criteria.Key()}, func(tb *models.Table) (MonthlyResponse, error) {
		filtered := search.Apply(tb, forSchema(criteria, tb.Schema))
		resp := MonthlyResponse{MonthlySeries: aggregate.Monthly(filtered)}
		if filtered.IsEmpty() {
			resp.Empty = true
			resp.Message = EmptyMessage
		}
		return resp, nil
	})
	apihttp.WriteJSON(w, http.StatusOK, resp)
}

func handleGroups(w http.ResponseWriter, r *http.Request) {
	sess, err := sessions.Current(r)
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}
	key, err := aggregate.ParseKey(chi.URLParam(r, "key"))
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}
	metric, err := aggregate.ParseMetric(r.URL.Query().Get("metric"))
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}

	totals, err := sessions.Cached(sess, "groups", []any{key, metric}, func(tb *models.Table) (models.GroupTotals, error) {
		return aggregate.Group(tb, key, metric)
	})
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, totals)
}

func handleInstitutionMonthly(w http.ResponseWriter, r *http.Request) {
	sess, err := sessions.Current(r)
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}
	name := chi.URLParam(r, "name")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}

	series, err := sessions.Cached(sess, "institution-monthly", []any{name}, func(tb *models.Table) (models.MonthlySeries, error) {
		return aggregate.InstitutionMonthly(tb, name)
	})
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, series)
}

// monthlyCriteria folds the repeatable institution and category parameters
// into the multi-select criteria
func monthlyCriteria(v url.Values) (search.Criteria, error) {
	q := url.Values{}
	for k, vals := range v {
		q[k] = vals
	}
	q["institutions"] = append(append([]string{}, v["institutions"]...), v["institution"]...)
	q["categories"] = append(append([]string{}, v["categories"]...), v["category"]...)
	q.Del("institution")
	q.Del("category")
	return search.FromValues(q)
}

// forSchema drops the multi-select sets for columns the upload lacks, so a
// stale selection from an earlier file leaves the series unfiltered
func forSchema(c search.Criteria, s models.Schema) search.Criteria {
	if !s.HasInstitution {
		c.Institutions = nil
	}
	if !s.HasCategory {
		c.Categories = nil
	}
	return c
}
