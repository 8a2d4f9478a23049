package models

// Summary contains the headline KPIs for a table
type Summary struct {
	TotalSpent         float64 `json:"total_spent"` // negative
	TotalIncome        float64 `json:"total_income"`
	Balance            float64 `json:"balance"`
	MeanMonthlyBalance float64 `json:"mean_monthly_balance"`
	TransactionCount   int     `json:"transaction_count"`
	Months             int     `json:"months"`
	StartDate          string  `json:"start_date,omitempty"`
	EndDate            string  `json:"end_date,omitempty"`
}

// Series is a dated sequence of values
type Series struct {
	Dates  []string  `json:"dates"`
	Values []float64 `json:"values"`
}

// Append adds one observation
func (s *Series) Append(date string, value float64) {
	s.Dates = append(s.Dates, date)
	s.Values = append(s.Values, value)
}

// Len returns the number of observations
func (s Series) Len() int {
	return len(s.Values)
}

// MonthlySeries is the monthly view of a table. Dates and Balance cover every
// month of the resample range; Expense and Income only hold months that had
// at least one transaction of that sign.
type MonthlySeries struct {
	Dates   []string  `json:"dates"`
	Balance []float64 `json:"balance"`
	Expense Series    `json:"expense"`
	Income  Series    `json:"income"`
}

// GroupTotals is a totals-by-group table. Percent is only set for
// category breakdowns.
type GroupTotals struct {
	Key     string    `json:"key"`
	Metric  string    `json:"metric,omitempty"`
	Group   []string  `json:"group"`
	Total   []float64 `json:"total"`
	Percent []float64 `json:"percent,omitempty"`
}

// Len returns the number of groups
func (g GroupTotals) Len() int {
	return len(g.Group)
}

// FilterOptions lists the values available to the search dropdowns
type FilterOptions struct {
	Categories   []string `json:"categories"`
	Institutions []string `json:"institutions"`
	Countries    []string `json:"countries"`
	Schema       Schema   `json:"schema"`
}
