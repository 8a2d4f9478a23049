// Package forecast projects monthly expense totals with an automatically
// selected non-seasonal ARIMA model.
package forecast

import (
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"findash/internal/errs"
	"findash/internal/models"
	"findash/internal/services/numeric"
)

// FromTable forecasts the table's absolute monthly expense series
func FromTable(tb *models.Table, horizon int, rules models.Rules) (models.Forecast, error) {
	dates, values := tb.ExpenseSeries()
	return Forecast(dates, values, horizon, rules)
}

// Forecast fits a model to values (one per month, dates are month ends) and
// returns horizon monthly projections with a two-sided confidence band.
func Forecast(dates []time.Time, values []float64, horizon int, rules models.Rules) (models.Forecast, error) {
	const op = "forecast"

	if horizon < 1 || (rules.MaxForecastHorizon > 0 && horizon > rules.MaxForecastHorizon) {
		return models.Forecast{}, errs.Newf(errs.KindInvalidParameter, op,
			"horizon must be between 1 and %d, got %d", rules.MaxForecastHorizon, horizon)
	}
	if !(rules.ForecastConfidence > 0 && rules.ForecastConfidence < 1) {
		return models.Forecast{}, errs.Newf(errs.KindInvalidParameter, op,
			"confidence must be in (0, 1), got %v", rules.ForecastConfidence)
	}
	if len(dates) != len(values) {
		return models.Forecast{}, errs.Newf(errs.KindInvalidParameter, op,
			"%d dates for %d values", len(dates), len(values))
	}
	if len(values) < rules.MinForecastHistory {
		return models.Forecast{}, errs.Newf(errs.KindInsufficientHistory, op,
			"need at least %d months of expenses, have %d", rules.MinForecastHistory, len(values))
	}
	if !numeric.AllFinite(values...) {
		return models.Forecast{}, errs.New(errs.KindModelFit, op, "series contains non-finite values")
	}
	if stat.Variance(values, nil) == 0 {
		return models.Forecast{}, errs.New(errs.KindModelFit, op, "not enough variation to forecast")
	}

	model := autoFit(values)
	if model == nil {
		return models.Forecast{}, errs.New(errs.KindModelFit, op, "no candidate model could be fitted")
	}

	point, se := model.predict(horizon)
	z := distuv.UnitNormal.Quantile(1 - (1-rules.ForecastConfidence)/2)

	result := models.Forecast{
		Dates:      make([]string, horizon),
		Point:      make([]float64, horizon),
		Lower:      make([]float64, horizon),
		Upper:      make([]float64, horizon),
		Confidence: rules.ForecastConfidence,
		AIC:        model.aicc,
		Order: models.ForecastOrder{
			P:         model.p,
			D:         model.d,
			Q:         model.q,
			Intercept: model.intercept,
		},
	}

	next := models.MonthStart(dates[len(dates)-1]).AddDate(0, 1, 0)
	for i := 0; i < horizon; i++ {
		result.Dates[i] = next.AddDate(0, i, 0).Format(models.DateLayout)
		result.Point[i] = point[i]
		result.Lower[i] = point[i] - z*se[i]
		result.Upper[i] = point[i] + z*se[i]
		if !numeric.AllFinite(result.Point[i], result.Lower[i], result.Upper[i]) {
			return models.Forecast{}, errs.New(errs.KindModelFit, op, "model produced non-finite forecasts")
		}
	}

	for i, d := range dates {
		result.History.Append(d.Format(models.DateLayout), values[i])
	}

	return result, nil
}
