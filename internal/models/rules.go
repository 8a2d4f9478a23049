package models

// Rules holds the business thresholds used by the insight engines.
// Defaults come from DefaultRules; a YAML rules file may override any field.
type Rules struct {
	// Recommendation
	SavingsRate         float64 `yaml:"savings_rate" json:"savings_rate"`
	DeficitRatio        float64 `yaml:"deficit_ratio" json:"deficit_ratio"`
	NearLimitRatio      float64 `yaml:"near_limit_ratio" json:"near_limit_ratio"`
	GoodControlRatio    float64 `yaml:"good_control_ratio" json:"good_control_ratio"`
	MinRegressionMonths int     `yaml:"min_regression_months" json:"min_regression_months"`

	// Segmentation
	TertileLow  float64 `yaml:"tertile_low" json:"tertile_low"`
	TertileHigh float64 `yaml:"tertile_high" json:"tertile_high"`

	// Forecast
	MinForecastHistory int     `yaml:"min_forecast_history" json:"min_forecast_history"`
	MaxForecastHorizon int     `yaml:"max_forecast_horizon" json:"max_forecast_horizon"`
	ForecastConfidence float64 `yaml:"forecast_confidence" json:"forecast_confidence"`

	// Anomaly
	MinAnomalyHistory    int     `yaml:"min_anomaly_history" json:"min_anomaly_history"`
	DefaultContamination float64 `yaml:"default_contamination" json:"default_contamination"`
	MinContamination     float64 `yaml:"min_contamination" json:"min_contamination"`
	MaxContamination     float64 `yaml:"max_contamination" json:"max_contamination"`
	AnomalyTrees         int     `yaml:"anomaly_trees" json:"anomaly_trees"`
	AnomalySampleSize    int     `yaml:"anomaly_sample_size" json:"anomaly_sample_size"`
	AnomalySeed          int64   `yaml:"anomaly_seed" json:"anomaly_seed"`
}

// DefaultRules returns the standard thresholds
func DefaultRules() Rules {
	return Rules{
		SavingsRate:         0.20,
		DeficitRatio:        1.0,
		NearLimitRatio:      0.8,
		GoodControlRatio:    0.6,
		MinRegressionMonths: 2,

		TertileLow:  0.33,
		TertileHigh: 0.66,

		MinForecastHistory: 6,
		MaxForecastHorizon: 24,
		ForecastConfidence: 0.95,

		MinAnomalyHistory:    6,
		DefaultContamination: 0.10,
		MinContamination:     0.02,
		MaxContamination:     0.30,
		AnomalyTrees:         100,
		AnomalySampleSize:    256,
		AnomalySeed:          123,
	}
}

// ClampContamination limits a requested contamination to the range the
// dashboard slider offers
func (r Rules) ClampContamination(c float64) float64 {
	return min(max(c, r.MinContamination), r.MaxContamination)
}
