package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"findash/internal/models"
)

// Config holds application configuration
type Config struct {
	// Server settings
	ListenAddr     string   `json:"listen_addr"`
	Debug          bool     `json:"debug"`
	LogLevel       string   `json:"log_level"`
	MaxUploadMB    int      `json:"max_upload_mb"`
	AllowedOrigins []string `json:"allowed_origins"`

	// Derived result cache and sessions
	CacheSize  int           `json:"cache_size"`
	CacheTTL   time.Duration `json:"cache_ttl"`
	SessionTTL time.Duration `json:"session_ttl"`

	// RulesFile optionally overrides the default business thresholds
	RulesFile string `json:"rules_file"`

	// Passphrase opens age-encrypted uploads. Never serialized.
	Passphrase string `json:"-"`

	Theme Theme        `json:"theme"`
	Rules models.Rules `json:"rules"`
}

// Theme is the chart palette the presentation layer renders with
type Theme struct {
	Name          string `json:"name" yaml:"name"`
	ExpenseColor  string `json:"expense_color" yaml:"expense_color"`
	IncomeColor   string `json:"income_color" yaml:"income_color"`
	BalanceColor  string `json:"balance_color" yaml:"balance_color"`
	ForecastColor string `json:"forecast_color" yaml:"forecast_color"`
	BandColor     string `json:"band_color" yaml:"band_color"`
	AnomalyColor  string `json:"anomaly_color" yaml:"anomaly_color"`
	MapScale      string `json:"map_scale" yaml:"map_scale"`
}

// DefaultTheme returns the dark forest palette
func DefaultTheme() Theme {
	return Theme{
		Name:          "forest_dark",
		ExpenseColor:  "red",
		IncomeColor:   "green",
		BalanceColor:  "blue",
		ForecastColor: "orange",
		BandColor:     "rgba(200,200,200,0.4)",
		AnomalyColor:  "red",
		MapScale:      "RdYlGn",
	}
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:     ":8080",
		LogLevel:       "info",
		MaxUploadMB:    20,
		AllowedOrigins: []string{"*"},
		CacheSize:      256,
		CacheTTL:       10 * time.Minute,
		SessionTTL:     2 * time.Hour,
		Theme:          DefaultTheme(),
		Rules:          models.DefaultRules(),
	}
}

// Load loads configuration from the environment. A rules file named by
// FINDASH_RULES_FILE is applied over the default rules.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if addr := os.Getenv("FINDASH_LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if debug := os.Getenv("FINDASH_DEBUG"); debug == "true" || debug == "1" {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
	if level := os.Getenv("FINDASH_LOG_LEVEL"); level != "" {
		cfg.LogLevel = strings.ToLower(level)
	}
	if origins := os.Getenv("FINDASH_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}
	if theme := os.Getenv("FINDASH_THEME"); theme != "" {
		cfg.Theme.Name = theme
	}
	cfg.RulesFile = os.Getenv("FINDASH_RULES_FILE")
	cfg.Passphrase = os.Getenv("FINDASH_PASSPHRASE")

	var errs []string
	if v := os.Getenv("FINDASH_MAX_UPLOAD_MB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid FINDASH_MAX_UPLOAD_MB '%s': must be a number", v))
		}
		cfg.MaxUploadMB = n
	}
	if v := os.Getenv("FINDASH_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid FINDASH_CACHE_SIZE '%s': must be a number", v))
		}
		cfg.CacheSize = n
	}
	if v := os.Getenv("FINDASH_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid FINDASH_CACHE_TTL '%s': %v", v, err))
		}
		cfg.CacheTTL = d
	}
	if v := os.Getenv("FINDASH_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid FINDASH_SESSION_TTL '%s': %v", v, err))
		}
		cfg.SessionTTL = d
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	if cfg.RulesFile != "" {
		rules, err := LoadRules(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		cfg.Rules = rules
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRules reads a YAML rules file. Fields it omits keep their defaults.
func LoadRules(path string) (models.Rules, error) {
	rules := models.DefaultRules()

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("failed to read rules file: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	if err := ValidateRules(rules); err != nil {
		return rules, fmt.Errorf("rules file %s: %w", path, err)
	}
	return rules, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var problems []string

	if c.ListenAddr == "" {
		problems = append(problems, "listen address cannot be empty")
	}
	if c.MaxUploadMB < 1 || c.MaxUploadMB > 512 {
		problems = append(problems, fmt.Sprintf("invalid max upload %d MB: must be between 1 and 512", c.MaxUploadMB))
	}
	if c.CacheSize < 1 {
		problems = append(problems, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.CacheTTL < time.Second {
		problems = append(problems, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	}
	if c.SessionTTL < time.Minute {
		problems = append(problems, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}
	if c.Passphrase != "" && len(c.Passphrase) < 8 {
		problems = append(problems, "passphrase must be at least 8 characters")
	}
	if err := ValidateRules(c.Rules); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ValidateRules rejects thresholds the insight engines cannot work with
func ValidateRules(r models.Rules) error {
	var problems []string

	if r.SavingsRate < 0 || r.SavingsRate > 1 {
		problems = append(problems, fmt.Sprintf("savings_rate %v must be within [0, 1]", r.SavingsRate))
	}
	if !(r.GoodControlRatio > 0 && r.GoodControlRatio <= r.NearLimitRatio && r.NearLimitRatio <= r.DeficitRatio) {
		problems = append(problems, "ratios must satisfy 0 < good_control_ratio <= near_limit_ratio <= deficit_ratio")
	}
	if r.MinRegressionMonths < 2 {
		problems = append(problems, "min_regression_months must be at least 2")
	}
	if !(r.TertileLow > 0 && r.TertileLow < r.TertileHigh && r.TertileHigh < 1) {
		problems = append(problems, "tertiles must satisfy 0 < tertile_low < tertile_high < 1")
	}
	if r.MinForecastHistory < 3 {
		problems = append(problems, "min_forecast_history must be at least 3")
	}
	if r.MaxForecastHorizon < 1 {
		problems = append(problems, "max_forecast_horizon must be at least 1")
	}
	if r.ForecastConfidence <= 0 || r.ForecastConfidence >= 1 {
		problems = append(problems, "forecast_confidence must be within (0, 1)")
	}
	if r.MinAnomalyHistory < 2 {
		problems = append(problems, "min_anomaly_history must be at least 2")
	}
	if r.DefaultContamination <= 0 || r.DefaultContamination >= 1 {
		problems = append(problems, "default_contamination must be within (0, 1)")
	}
	if !(r.MinContamination > 0 && r.MinContamination <= r.DefaultContamination &&
		r.DefaultContamination <= r.MaxContamination && r.MaxContamination < 1) {
		problems = append(problems, "contamination must satisfy 0 < min_contamination <= default_contamination <= max_contamination < 1")
	}
	if r.AnomalyTrees < 1 || r.AnomalySampleSize < 2 {
		problems = append(problems, "anomaly_trees must be at least 1 and anomaly_sample_size at least 2")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
