package models

// ForecastOrder is the (p, d, q) order chosen for the expense model
type ForecastOrder struct {
	P         int  `json:"p"`
	D         int  `json:"d"`
	Q         int  `json:"q"`
	Intercept bool `json:"intercept"`
}

// Forecast holds point forecasts and interval bounds, one entry per step
type Forecast struct {
	Dates      []string      `json:"dates"`
	Point      []float64     `json:"point"`
	Lower      []float64     `json:"lower"`
	Upper      []float64     `json:"upper"`
	Order      ForecastOrder `json:"order"`
	Confidence float64       `json:"confidence"`
	AIC        float64       `json:"aic"`
	History    Series        `json:"history"`
}

// ClusterLabel is a spend tier: A highest, C lowest
type ClusterLabel string

const (
	ClusterA ClusterLabel = "A"
	ClusterB ClusterLabel = "B"
	ClusterC ClusterLabel = "C"
)

// SegmentPoint is one labeled month
type SegmentPoint struct {
	Date    string       `json:"date"`
	Month   string       `json:"month"` // "January 2024"
	Income  float64      `json:"income"`
	Expense float64      `json:"expense"`
	Balance float64      `json:"balance"`
	Count   int          `json:"count"`
	Label   ClusterLabel `json:"label"`
}

// ClusterSummary holds descriptive statistics for one tier
type ClusterSummary struct {
	Label       ClusterLabel `json:"label"`
	Count       int          `json:"count"`
	MeanExpense float64      `json:"mean_expense"`
	MeanIncome  float64      `json:"mean_income"`
	MeanBalance float64      `json:"mean_balance"`
}

// SegmentInsights names the extreme months
type SegmentInsights struct {
	MaxExpenseMonth   string `json:"max_expense_month"`
	MinExpenseMonth   string `json:"min_expense_month"`
	BestBalanceMonth  string `json:"best_balance_month"`
	WorstBalanceMonth string `json:"worst_balance_month"`
}

// Segmentation is the tertile clustering of months
type Segmentation struct {
	Points   []SegmentPoint   `json:"points"`
	Clusters []ClusterSummary `json:"clusters"`
	Insights SegmentInsights  `json:"insights"`
	Q1       float64          `json:"q1"`
	Q2       float64          `json:"q2"`
}

// AnomalyReport flags unusual spending months. Scores are decision-function
// margins: negative means anomalous, lower means more isolated.
type AnomalyReport struct {
	Dates         []string  `json:"dates"`
	Values        []float64 `json:"value"`
	IsAnomalous   []bool    `json:"is_anomalous"`
	Scores        []float64 `json:"score"`
	Contamination float64   `json:"contamination"`
	Threshold     float64   `json:"threshold"`
}

// Anomalies returns the indexes of flagged months
func (r AnomalyReport) Anomalies() []int {
	var idx []int
	for i, flagged := range r.IsAnomalous {
		if flagged {
			idx = append(idx, i)
		}
	}
	return idx
}

// SpendingStatus is the qualitative verdict for a month
type SpendingStatus string

const (
	StatusDeficit     SpendingStatus = "deficit, cut fixed costs"
	StatusNearLimit   SpendingStatus = "near limit, reduce discretionary"
	StatusGoodControl SpendingStatus = "good control, can save more"
	StatusReasonable  SpendingStatus = "within reasonable range"
)

// Recommendation is the savings guidance for one month
type Recommendation struct {
	Month         string         `json:"month"`
	Label         string         `json:"label"` // "January 2024"
	Income        float64        `json:"income"`
	Expense       float64        `json:"expense"`
	Predicted     float64        `json:"predicted"`
	Deviation     float64        `json:"deviation"`
	SavingsTarget float64        `json:"savings_target"`
	Status        SpendingStatus `json:"status"`
	Note          string         `json:"note"`
}
