// Package anomaly flags unusual spending months with an isolation forest.
package anomaly

import (
	"math"
	"sort"
	"time"

	"findash/internal/errs"
	"findash/internal/models"
	"findash/internal/services/numeric"
)

// FromTable runs Detect over the table's absolute monthly expense series.
// The whole loaded history is used, not a rolling window.
func FromTable(tb *models.Table, contamination float64, rules models.Rules) (models.AnomalyReport, error) {
	dates, values := tb.ExpenseSeries()
	return Detect(dates, values, contamination, rules)
}

// Detect scores each month and flags the round(contamination*n) most
// isolated ones. Scores are decision margins: lower is more anomalous and
// flagged months are exactly those with a negative score.
func Detect(dates []time.Time, values []float64, contamination float64, rules models.Rules) (models.AnomalyReport, error) {
	const op = "anomaly"

	if math.IsNaN(contamination) || contamination <= 0 || contamination >= 1 {
		return models.AnomalyReport{}, errs.Newf(errs.KindInvalidParameter, op,
			"contamination must be in (0, 1), got %v", contamination)
	}
	if len(dates) != len(values) {
		return models.AnomalyReport{}, errs.Newf(errs.KindInvalidParameter, op,
			"%d dates for %d values", len(dates), len(values))
	}
	if len(values) < rules.MinAnomalyHistory {
		return models.AnomalyReport{}, errs.Newf(errs.KindInsufficientHistory, op,
			"need at least %d months of expenses, have %d", rules.MinAnomalyHistory, len(values))
	}
	if !numeric.AllFinite(values...) {
		return models.AnomalyReport{}, errs.New(errs.KindModelFit, op, "series contains non-finite values")
	}

	trees := rules.AnomalyTrees
	if trees < 1 {
		trees = models.DefaultRules().AnomalyTrees
	}
	sampleSize := rules.AnomalySampleSize
	if sampleSize < 2 {
		sampleSize = models.DefaultRules().AnomalySampleSize
	}

	f := grow(values, trees, sampleSize, rules.AnomalySeed)

	raw := make([]float64, len(values))
	for i, v := range values {
		raw[i] = f.score(v)
	}
	offset := threshold(raw, int(math.Round(contamination*float64(len(values)))))

	report := models.AnomalyReport{
		Dates:         make([]string, len(values)),
		Values:        make([]float64, len(values)),
		IsAnomalous:   make([]bool, len(values)),
		Scores:        make([]float64, len(values)),
		Contamination: contamination,
		Threshold:     offset,
	}
	for i := range values {
		report.Dates[i] = dates[i].Format(models.DateLayout)
		report.Values[i] = values[i]
		report.Scores[i] = raw[i] - offset
		report.IsAnomalous[i] = report.Scores[i] < 0
	}

	return report, nil
}

// threshold returns an offset that leaves exactly the k lowest scores
// strictly below it. Scores tied across the boundary stay unflagged.
func threshold(scores []float64, k int) float64 {
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	switch {
	case k <= 0:
		return sorted[0]
	case k >= len(sorted):
		return math.Nextafter(sorted[len(sorted)-1], math.Inf(1))
	}
	return sorted[k-1] + (sorted[k]-sorted[k-1])/2
}
