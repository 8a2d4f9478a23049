package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"findash/internal/errs"
	"findash/internal/models"
	"findash/internal/testutil"
)

func sampleTable(t *testing.T) *models.Table {
	txs := []models.Transaction{
		testutil.Tx(t, "2024-01-05", "2000", "Salary", "Payroll"),
		testutil.Tx(t, "2024-01-10", "-300.50", "Groceries", "Supermarket"),
		testutil.Tx(t, "2024-01-20", "-900", "Housing", "Rent"),
		// February has no rows
		testutil.Tx(t, "2024-03-02", "-120.25", "Groceries", "Market"),
		testutil.Tx(t, "2024-03-28", "-79.25", "Leisure", "Cinema"),
		testutil.Tx(t, "2024-03-30", "-10", "", "Unlabelled"),
	}
	txs[0].Institution, txs[0].Country = "Bank A", "Spain"
	txs[1].Institution, txs[1].Country = "Bank B", "Spain"
	txs[2].Institution, txs[2].Country = "Bank A", "France"
	txs[3].Institution, txs[3].Country = "Bank B", "Spain"
	txs[4].Institution, txs[4].Country = "Bank B", "France"
	txs[5].Institution, txs[5].Country = "Bank A", "Spain"
	return models.NewTable(txs, testutil.FullSchema)
}

func TestMonthly(t *testing.T) {
	series := Monthly(sampleTable(t))

	assert.Equal(t, []string{"2024-01-31", "2024-02-29", "2024-03-31"}, series.Dates)
	assert.InDeltaSlice(t, []float64{799.5, 0, -209.5}, series.Balance, 1e-9)

	assert.Equal(t, []string{"2024-01-31", "2024-03-31"}, series.Expense.Dates)
	assert.InDeltaSlice(t, []float64{1200.5, 209.5}, series.Expense.Values, 1e-9)

	assert.Equal(t, []string{"2024-01-31"}, series.Income.Dates)
	assert.InDeltaSlice(t, []float64{2000}, series.Income.Values, 1e-9)
}

func TestMonthlyBalanceMatchesTotal(t *testing.T) {
	tables := []*models.Table{
		sampleTable(t),
		testutil.MonthlyTable(t, testutil.Repeat(2000, 12), testutil.Repeat(1000, 12)),
		testutil.MonthlyTable(t, []float64{0, 100.1, 0, 5}, []float64{3.3, 0, 0, 7.7}),
	}

	for _, tb := range tables {
		var sum float64
		for _, v := range Monthly(tb).Balance {
			sum += v
		}
		assert.InDelta(t, tb.SumAmount().InexactFloat64(), sum, 1e-6)
	}
}

func TestMonthlyEmptyTable(t *testing.T) {
	series := Monthly(models.NewTable(nil, models.Schema{}))
	assert.Empty(t, series.Dates)
	assert.Equal(t, 0, series.Expense.Len())
}

func TestByCategory(t *testing.T) {
	totals, err := ByCategory(sampleTable(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"Housing", "Groceries", "Leisure"}, totals.Group)
	assert.InDeltaSlice(t, []float64{900, 420.75, 79.25}, totals.Total, 1e-9)

	var pct float64
	for _, p := range totals.Percent {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 100.0)
		pct += p
	}
	assert.InDelta(t, 100.0, pct, 1e-6)
	assert.InDelta(t, 900/1400.0*100, totals.Percent[0], 1e-9)
}

func TestByCategoryNoExpenses(t *testing.T) {
	tb := models.NewTable([]models.Transaction{
		testutil.Tx(t, "2024-01-05", "2000", "Salary", "Payroll"),
	}, testutil.FullSchema)

	totals, err := ByCategory(tb)
	require.NoError(t, err)
	assert.Equal(t, 0, totals.Len())
}

func TestByCategoryMissingColumn(t *testing.T) {
	tb := models.NewTable(nil, models.Schema{HasInstitution: true})
	_, err := ByCategory(tb)
	assert.ErrorIs(t, err, errs.ErrMissingColumn)
}

func TestByInstitution(t *testing.T) {
	totals, err := ByInstitution(sampleTable(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"Bank A", "Bank B"}, totals.Group)
	assert.InDeltaSlice(t, []float64{1090, -500}, totals.Total, 1e-9)
	assert.Nil(t, totals.Percent)
}

func TestByCountry(t *testing.T) {
	tests := []struct {
		metric Metric
		groups []string
		totals []float64
	}{
		{MetricBalance, []string{"Spain", "France"}, []float64{1569.25, -979.25}},
		{MetricExpense, []string{"France", "Spain"}, []float64{979.25, 430.75}},
		{MetricIncome, []string{"Spain"}, []float64{2000}},
	}

	for _, tt := range tests {
		t.Run(string(tt.metric), func(t *testing.T) {
			totals, err := ByCountry(sampleTable(t), tt.metric)
			require.NoError(t, err)
			assert.Equal(t, tt.groups, totals.Group)
			assert.InDeltaSlice(t, tt.totals, totals.Total, 1e-9)
			assert.Equal(t, string(tt.metric), totals.Metric)
		})
	}

	_, err := ByCountry(sampleTable(t), Metric("median"))
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestGroupDispatch(t *testing.T) {
	tb := sampleTable(t)

	none, err := Group(tb, KeyNone, "")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{590}, none.Total, 1e-9)

	cat, err := Group(tb, KeyCategory, "")
	require.NoError(t, err)
	assert.Equal(t, "category", cat.Key)

	_, err = ParseKey("merchant")
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestInstitutionMonthly(t *testing.T) {
	series, err := InstitutionMonthly(sampleTable(t), "Bank B")
	require.NoError(t, err)

	assert.Equal(t, []string{"2024-01-31", "2024-02-29", "2024-03-31"}, series.Dates)
	assert.InDeltaSlice(t, []float64{-300.5, 0, -199.5}, series.Balance, 1e-9)
	assert.Equal(t, 0, series.Income.Len())
}
