package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyBucket aggregates one calendar month of transactions.
type MonthlyBucket struct {
	Month        time.Time // last day of the month
	ExpenseTotal decimal.Decimal
	IncomeTotal  decimal.Decimal
	Balance      decimal.Decimal
	Count        int
	HasExpense   bool
	HasIncome    bool
}

// Complete reports whether the month has both income and expense data
func (b MonthlyBucket) Complete() bool {
	return b.HasExpense && b.HasIncome
}

// MonthStart returns the first day of t's month at midnight UTC
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthEnd returns the last day of t's month at midnight UTC
func MonthEnd(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, -1)
}

// MonthlyBuckets resamples the table into calendar months, from the first
// transaction month to the last. Months without rows are zero-valued.
func (tb *Table) MonthlyBuckets() []MonthlyBucket {
	if len(tb.Transactions) == 0 {
		return nil
	}

	first := MonthStart(tb.MinDate())
	last := MonthStart(tb.MaxDate())

	var buckets []MonthlyBucket
	index := make(map[time.Time]int)
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		index[m] = len(buckets)
		buckets = append(buckets, MonthlyBucket{
			Month:        MonthEnd(m),
			ExpenseTotal: decimal.Zero,
			IncomeTotal:  decimal.Zero,
			Balance:      decimal.Zero,
		})
	}

	for _, t := range tb.Transactions {
		b := &buckets[index[MonthStart(t.Date)]]
		b.Count++
		b.Balance = b.Balance.Add(t.Amount)
		switch {
		case t.IsExpense():
			b.ExpenseTotal = b.ExpenseTotal.Add(t.AbsAmount())
			b.HasExpense = true
		case t.IsIncome():
			b.IncomeTotal = b.IncomeTotal.Add(t.Amount)
			b.HasIncome = true
		}
	}

	return buckets
}

// ExpenseSeries returns the absolute monthly expense totals for months that
// had at least one expense, in chronological order.
func (tb *Table) ExpenseSeries() ([]time.Time, []float64) {
	var dates []time.Time
	var values []float64
	for _, b := range tb.MonthlyBuckets() {
		if !b.HasExpense {
			continue
		}
		dates = append(dates, b.Month)
		values = append(values, b.ExpenseTotal.InexactFloat64())
	}
	return dates, values
}
