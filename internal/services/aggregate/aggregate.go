// Package aggregate reduces a transaction table into monthly series and
// totals by group.
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"findash/internal/errs"
	"findash/internal/models"
)

// Key selects the grouping column
type Key string

const (
	KeyNone        Key = "none"
	KeyCategory    Key = "category"
	KeyInstitution Key = "institution"
	KeyCountry     Key = "country"
)

// Metric selects what a country breakdown sums
type Metric string

const (
	MetricExpense Metric = "expense"
	MetricIncome  Metric = "income"
	MetricBalance Metric = "balance"
)

// ParseKey validates a grouping key from user input
func ParseKey(s string) (Key, error) {
	switch k := Key(s); k {
	case KeyNone, KeyCategory, KeyInstitution, KeyCountry:
		return k, nil
	case "":
		return KeyNone, nil
	}
	return "", errs.Newf(errs.KindInvalidParameter, "aggregate", "unknown grouping key %q", s)
}

// ParseMetric validates a country metric from user input. Empty means balance.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case MetricExpense, MetricIncome, MetricBalance:
		return m, nil
	case "":
		return MetricBalance, nil
	}
	return "", errs.Newf(errs.KindInvalidParameter, "aggregate", "unknown metric %q", s)
}

// Monthly resamples the table to calendar months
func Monthly(tb *models.Table) models.MonthlySeries {
	series := models.MonthlySeries{
		Dates:   []string{},
		Balance: []float64{},
		Expense: models.Series{Dates: []string{}, Values: []float64{}},
		Income:  models.Series{Dates: []string{}, Values: []float64{}},
	}

	for _, b := range tb.MonthlyBuckets() {
		date := b.Month.Format(models.DateLayout)
		series.Dates = append(series.Dates, date)
		series.Balance = append(series.Balance, b.Balance.InexactFloat64())
		if b.HasExpense {
			series.Expense.Append(date, b.ExpenseTotal.InexactFloat64())
		}
		if b.HasIncome {
			series.Income.Append(date, b.IncomeTotal.InexactFloat64())
		}
	}

	return series
}

// InstitutionMonthly returns the monthly series for a single institution
func InstitutionMonthly(tb *models.Table, institution string) (models.MonthlySeries, error) {
	if !tb.Schema.HasInstitution {
		return models.MonthlySeries{}, errs.New(errs.KindMissingColumn, "aggregate", "no Institution column")
	}
	return Monthly(tb.Where(func(t *models.Transaction) bool {
		return t.Institution == institution
	})), nil
}

// Group dispatches to the breakdown for key. KeyNone yields a single
// "total" group holding the raw signed sum.
func Group(tb *models.Table, key Key, metric Metric) (models.GroupTotals, error) {
	switch key {
	case KeyCategory:
		return ByCategory(tb)
	case KeyInstitution:
		return ByInstitution(tb)
	case KeyCountry:
		return ByCountry(tb, metric)
	case KeyNone, "":
		return models.GroupTotals{
			Key:   string(KeyNone),
			Group: []string{"total"},
			Total: []float64{tb.SumAmount().InexactFloat64()},
		}, nil
	}
	return models.GroupTotals{}, errs.Newf(errs.KindInvalidParameter, "aggregate", "unknown grouping key %q", key)
}

// ByCategory totals expenses per category. Groups are ordered by signed sum
// ascending (largest expense first) and then reported as absolute values with
// their share of total expense. Rows without a category are left out.
func ByCategory(tb *models.Table) (models.GroupTotals, error) {
	if !tb.Schema.HasCategory {
		return models.GroupTotals{}, errs.New(errs.KindMissingColumn, "aggregate", "no Category column")
	}

	expenses := tb.Expenses().Where(func(t *models.Transaction) bool { return t.Category != "" })
	sums := sumBy(expenses, func(t *models.Transaction) string { return t.Category })
	groups := sortedGroups(sums, true)

	result := models.GroupTotals{
		Key:     string(KeyCategory),
		Group:   []string{},
		Total:   []float64{},
		Percent: []float64{},
	}

	total := decimal.Zero
	for _, g := range groups {
		total = total.Add(sums[g].Abs())
	}

	for _, g := range groups {
		abs := sums[g].Abs()
		pct := 0.0
		if !total.IsZero() {
			pct = abs.Div(total).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
		result.Group = append(result.Group, g)
		result.Total = append(result.Total, abs.InexactFloat64())
		result.Percent = append(result.Percent, pct)
	}

	return result, nil
}

// ByInstitution totals the signed amounts per institution, highest balance first
func ByInstitution(tb *models.Table) (models.GroupTotals, error) {
	if !tb.Schema.HasInstitution {
		return models.GroupTotals{}, errs.New(errs.KindMissingColumn, "aggregate", "no Institution column")
	}

	rows := tb.Where(func(t *models.Transaction) bool { return t.Institution != "" })
	sums := sumBy(rows, func(t *models.Transaction) string { return t.Institution })
	return toTotals(string(KeyInstitution), "", sums), nil
}

// ByCountry totals amounts per country for the given metric, highest first.
// Expense totals are absolute.
func ByCountry(tb *models.Table, metric Metric) (models.GroupTotals, error) {
	if !tb.Schema.HasCountry {
		return models.GroupTotals{}, errs.New(errs.KindMissingColumn, "aggregate", "no Country column")
	}

	rows := tb.Where(func(t *models.Transaction) bool { return t.Country != "" })
	switch metric {
	case MetricExpense:
		rows = rows.Expenses()
	case MetricIncome:
		rows = rows.Incomes()
	case MetricBalance, "":
		metric = MetricBalance
	default:
		return models.GroupTotals{}, errs.Newf(errs.KindInvalidParameter, "aggregate", "unknown metric %q", metric)
	}

	sums := sumBy(rows, func(t *models.Transaction) string { return t.Country })
	if metric == MetricExpense {
		for k, v := range sums {
			sums[k] = v.Abs()
		}
	}
	return toTotals(string(KeyCountry), string(metric), sums), nil
}

func sumBy(tb *models.Table, key func(t *models.Transaction) string) map[string]decimal.Decimal {
	sums := make(map[string]decimal.Decimal)
	for i := range tb.Transactions {
		t := &tb.Transactions[i]
		k := key(t)
		sums[k] = sums[k].Add(t.Amount)
	}
	return sums
}

// sortedGroups orders group names by their sum, breaking ties by name
func sortedGroups(sums map[string]decimal.Decimal, ascending bool) []string {
	groups := make([]string, 0, len(sums))
	for g := range sums {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		c := sums[groups[i]].Cmp(sums[groups[j]])
		if c == 0 {
			return groups[i] < groups[j]
		}
		if ascending {
			return c < 0
		}
		return c > 0
	})
	return groups
}

func toTotals(key, metric string, sums map[string]decimal.Decimal) models.GroupTotals {
	result := models.GroupTotals{
		Key:    key,
		Metric: metric,
		Group:  []string{},
		Total:  []float64{},
	}
	for _, g := range sortedGroups(sums, false) {
		result.Group = append(result.Group, g)
		result.Total = append(result.Total, sums[g].InexactFloat64())
	}
	return result
}
