// Package recommend compares each month's spending to a regression baseline
// and turns fixed expense-to-income ratios into savings guidance.
package recommend

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"findash/internal/errs"
	"findash/internal/models"
	"findash/internal/services/numeric"
)

const labelLayout = "January 2006"

// Status picks the verdict for a month. Rules are checked in order and the
// first match wins.
func Status(expense, income float64, rules models.Rules) models.SpendingStatus {
	switch {
	case expense > income*rules.DeficitRatio:
		return models.StatusDeficit
	case expense > income*rules.NearLimitRatio:
		return models.StatusNearLimit
	case expense < income*rules.GoodControlRatio:
		return models.StatusGoodControl
	default:
		return models.StatusReasonable
	}
}

// Baseline fits expense = alpha + beta*income by ordinary least squares.
// With no variation in income the slope is zero and the intercept is the
// mean expense.
func Baseline(income, expense []float64) (alpha, beta float64) {
	if stat.Variance(income, nil) == 0 {
		return stat.Mean(expense, nil), 0
	}
	return stat.LinearRegression(income, expense, nil, false)
}

// Recommend emits one entry per month that has both income and expenses
func Recommend(tb *models.Table, rules models.Rules) ([]models.Recommendation, error) {
	const op = "recommend"

	var months []models.MonthlyBucket
	for _, b := range tb.MonthlyBuckets() {
		if b.Complete() {
			months = append(months, b)
		}
	}

	minMonths := rules.MinRegressionMonths
	if minMonths < 2 {
		minMonths = 2
	}
	if len(months) < minMonths {
		return nil, errs.Newf(errs.KindInsufficientHistory, op,
			"need at least %d months with income and expenses, have %d", minMonths, len(months))
	}

	income := make([]float64, len(months))
	expense := make([]float64, len(months))
	for i, b := range months {
		income[i] = b.IncomeTotal.InexactFloat64()
		expense[i] = b.ExpenseTotal.InexactFloat64()
	}

	alpha, beta := Baseline(income, expense)
	if !numeric.AllFinite(alpha, beta) {
		return nil, errs.New(errs.KindModelFit, op, "regression did not converge")
	}

	recs := make([]models.Recommendation, len(months))
	for i, b := range months {
		predicted := numeric.Round2(alpha + beta*income[i])
		deviation := numeric.Round2(expense[i] - predicted)
		label := b.Month.Format(labelLayout)

		recs[i] = models.Recommendation{
			Month:         b.Month.Format(models.DateLayout),
			Label:         label,
			Income:        income[i],
			Expense:       expense[i],
			Predicted:     predicted,
			Deviation:     deviation,
			SavingsTarget: income[i] * rules.SavingsRate,
			Status:        Status(expense[i], income[i], rules),
			Note:          note(label, deviation),
		}
	}

	return recs, nil
}

func note(label string, deviation float64) string {
	if deviation > 0 {
		return fmt.Sprintf("In %s you spent %.2f more than expected.", label, deviation)
	}
	return fmt.Sprintf("In %s you spent %.2f less than expected.", label, math.Abs(deviation))
}
