// Package segment classifies months into spend tiers by tertile thresholds.
package segment

import (
	"gonum.org/v1/gonum/stat"

	"findash/internal/errs"
	"findash/internal/models"
	"findash/internal/services/numeric"
)

// MonthLabelLayout formats the human-readable month names in insights
const MonthLabelLayout = "January 2006"

var order = []models.ClusterLabel{models.ClusterA, models.ClusterB, models.ClusterC}

// Classify applies the lower-inclusive tier rule
func Classify(x, q1, q2 float64) models.ClusterLabel {
	switch {
	case x <= q1:
		return models.ClusterC
	case x <= q2:
		return models.ClusterB
	default:
		return models.ClusterA
	}
}

// Segment labels every month that has both income and expense. Thresholds
// are recomputed from the table on every call, over its full history.
func Segment(tb *models.Table, rules models.Rules) (models.Segmentation, error) {
	const op = "segment"

	if !(rules.TertileLow >= 0 && rules.TertileLow <= rules.TertileHigh && rules.TertileHigh <= 1) {
		return models.Segmentation{}, errs.Newf(errs.KindInvalidParameter, op,
			"invalid tertile thresholds %v/%v", rules.TertileLow, rules.TertileHigh)
	}

	var months []models.MonthlyBucket
	for _, b := range tb.MonthlyBuckets() {
		if b.Complete() {
			months = append(months, b)
		}
	}
	if len(months) == 0 {
		return models.Segmentation{}, errs.New(errs.KindInsufficientHistory, op,
			"no month has both income and expenses")
	}

	expense := make([]float64, len(months))
	income := make([]float64, len(months))
	balance := make([]float64, len(months))
	for i, b := range months {
		expense[i] = b.ExpenseTotal.InexactFloat64()
		income[i] = b.IncomeTotal.InexactFloat64()
		balance[i] = b.Balance.InexactFloat64()
	}

	q1 := numeric.Quantile(rules.TertileLow, expense)
	q2 := numeric.Quantile(rules.TertileHigh, expense)

	result := models.Segmentation{
		Points: make([]models.SegmentPoint, len(months)),
		Q1:     q1,
		Q2:     q2,
	}

	byLabel := make(map[models.ClusterLabel][]int)
	for i, b := range months {
		label := Classify(expense[i], q1, q2)
		byLabel[label] = append(byLabel[label], i)
		result.Points[i] = models.SegmentPoint{
			Date:    b.Month.Format(models.DateLayout),
			Month:   b.Month.Format(MonthLabelLayout),
			Income:  income[i],
			Expense: expense[i],
			Balance: balance[i],
			Count:   b.Count,
			Label:   label,
		}
	}

	for _, label := range order {
		idx := byLabel[label]
		if len(idx) == 0 {
			continue
		}
		result.Clusters = append(result.Clusters, models.ClusterSummary{
			Label:       label,
			Count:       len(idx),
			MeanExpense: stat.Mean(pick(expense, idx), nil),
			MeanIncome:  stat.Mean(pick(income, idx), nil),
			MeanBalance: stat.Mean(pick(balance, idx), nil),
		})
	}

	label := func(i int) string { return result.Points[i].Month }
	result.Insights = models.SegmentInsights{
		MaxExpenseMonth:   label(numeric.ArgMax(expense)),
		MinExpenseMonth:   label(numeric.ArgMin(expense)),
		BestBalanceMonth:  label(numeric.ArgMax(balance)),
		WorstBalanceMonth: label(numeric.ArgMin(balance)),
	}

	return result, nil
}

func pick(values []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = values[j]
	}
	return out
}
