package metrics

import (
	"gonum.org/v1/gonum/stat"

	"findash/internal/models"
)

// Service provides metric calculation functionality
type Service struct{}

// New creates a new metrics service
func New() *Service {
	return &Service{}
}

// Summary computes the headline KPIs. The mean monthly balance averages
// over every month of the resample range, empty months included.
func (s *Service) Summary(tb *models.Table) models.Summary {
	summary := models.Summary{
		TotalSpent:       tb.Expenses().SumAmount().InexactFloat64(),
		TotalIncome:      tb.Incomes().SumAmount().InexactFloat64(),
		Balance:          tb.SumAmount().InexactFloat64(),
		TransactionCount: tb.Len(),
	}
	if tb.IsEmpty() {
		return summary
	}

	buckets := tb.MonthlyBuckets()
	balances := make([]float64, len(buckets))
	for i, b := range buckets {
		balances[i] = b.Balance.InexactFloat64()
	}
	summary.Months = len(buckets)
	summary.MeanMonthlyBalance = stat.Mean(balances, nil)
	summary.StartDate = tb.MinDate().Format(models.DateLayout)
	summary.EndDate = tb.MaxDate().Format(models.DateLayout)

	return summary
}

// Options lists the distinct values for the filter dropdowns
func (s *Service) Options(tb *models.Table) models.FilterOptions {
	opts := models.FilterOptions{
		Categories:   []string{},
		Institutions: []string{},
		Countries:    []string{},
		Schema:       tb.Schema,
	}
	if tb.Schema.HasCategory {
		opts.Categories = append(opts.Categories, tb.Categories()...)
	}
	if tb.Schema.HasInstitution {
		opts.Institutions = append(opts.Institutions, tb.Institutions()...)
	}
	if tb.Schema.HasCountry {
		opts.Countries = append(opts.Countries, tb.Countries()...)
	}
	return opts
}
