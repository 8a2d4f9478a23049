package insights

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"findash/internal/handlers/sessions"
	apihttp "findash/internal/http"
	"findash/internal/models"
	"findash/internal/services/anomaly"
	"findash/internal/services/forecast"
	"findash/internal/services/recommend"
	"findash/internal/services/segment"
)

// DefaultHorizon is the forecast length when months is not given
const DefaultHorizon = 6

var rules models.Rules

// Initialize sets up the insights package with the business thresholds
func Initialize(r models.Rules) {
	rules = r
}

// RegisterRoutes registers all insights routes
func RegisterRoutes(r chi.Router) {
	r.Get("/api/sessions/{id}/forecast", handleForecast)
	r.Get("/api/sessions/{id}/segments", handleSegments)
	r.Get("/api/sessions/{id}/anomalies", handleAnomalies)
	r.Get("/api/sessions/{id}/recommendations", handleRecommendations)
}

func handleForecast(w http.ResponseWriter, r *http.Request) {
	sess, err := sessions.Current(r)
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}
	months, err := apihttp.QueryInt(r, "months", DefaultHorizon)
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}

	fc, err := sessions.Cached(sess, "forecast", []any{months}, func(tb *models.Table) (models.Forecast, error) {
		return forecast.FromTable(tb, months, rules)
	})
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, fc)
}

func handleSegments(w http.ResponseWriter, r *http.Request) {
	sess, err := sessions.Current(r)
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}

	seg, err := sessions.Cached(sess, "segments", nil, func(tb *models.Table) (models.Segmentation, error) {
		return segment.Segment(tb, rules)
	})
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, seg)
}

func handleAnomalies(w http.ResponseWriter, r *http.Request) {
	sess, err := sessions.Current(r)
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}
	contamination, err := apihttp.QueryFloat(r, "contamination", rules.DefaultContamination)
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}
	// values outside (0, 1) still reach the detector and are rejected there
	if contamination > 0 && contamination < 1 {
		contamination = rules.ClampContamination(contamination)
	}

	report, err := sessions.Cached(sess, "anomalies", []any{contamination}, func(tb *models.Table) (models.AnomalyReport, error) {
		return anomaly.FromTable(tb, contamination, rules)
	})
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, report)
}

func handleRecommendations(w http.ResponseWriter, r *http.Request) {
	sess, err := sessions.Current(r)
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}

	recs, err := sessions.Cached(sess, "recommendations", nil, func(tb *models.Table) ([]models.Recommendation, error) {
		return recommend.Recommend(tb, rules)
	})
	if err != nil {
		apihttp.ErrorResponse(w, r, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, recs)
}
