package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"findash/internal/models"
)

// FullSchema has every optional column
var FullSchema = models.Schema{
	HasCategory:    true,
	HasInstitution: true,
	HasCountry:     true,
	HasDescription: true,
}

// Date parses a YYYY-MM-DD date or fails the test
func Date(t testing.TB, s string) time.Time {
	t.Helper()
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		t.Fatalf("bad date %q: %v", s, err)
	}
	return d
}

// Tx builds a transaction from a date and a decimal amount string
func Tx(t testing.TB, date, amount, category, description string) models.Transaction {
	t.Helper()
	return models.Transaction{
		Date:        Date(t, date),
		Amount:      decimal.RequireFromString(amount),
		Category:    category,
		Description: description,
	}
}

// MonthlyTable builds a table with one income row on the 1st and one expense
// row on the 15th of each month, starting January 2023. A zero value skips
// that row. expenses are given as positive numbers.
func MonthlyTable(t testing.TB, incomes, expenses []float64) *models.Table {
	t.Helper()
	if len(incomes) != len(expenses) {
		t.Fatalf("MonthlyTable: %d incomes vs %d expenses", len(incomes), len(expenses))
	}

	start := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	var txs []models.Transaction
	for i := range incomes {
		month := start.AddDate(0, i, 0)
		if incomes[i] != 0 {
			txs = append(txs, models.Transaction{
				Date:        month,
				Amount:      decimal.NewFromFloat(incomes[i]),
				Category:    "Salary",
				Institution: "Bank A",
				Country:     "Spain",
				Description: "Payroll",
			})
		}
		if expenses[i] != 0 {
			txs = append(txs, models.Transaction{
				Date:        month.AddDate(0, 0, 14),
				Amount:      decimal.NewFromFloat(-expenses[i]),
				Category:    "Housing",
				Institution: "Bank B",
				Country:     "Spain",
				Description: fmt.Sprintf("Rent %s", month.Format("Jan")),
			})
		}
	}
	return models.NewTable(txs, FullSchema)
}

// Repeat returns n copies of v
func Repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
