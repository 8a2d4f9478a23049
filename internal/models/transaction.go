package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical calendar-date format used on the wire
const DateLayout = "2006-01-02"

// Transaction represents a single row of an uploaded export.
// Optional text fields are empty when the source had no value.
type Transaction struct {
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category,omitempty"`
	Institution string          `json:"institution,omitempty"`
	Country     string          `json:"country,omitempty"`
	Description string          `json:"description,omitempty"`
}

// IsExpense reports whether the amount is negative
func (t *Transaction) IsExpense() bool {
	return t.Amount.IsNegative()
}

// IsIncome reports whether the amount is positive
func (t *Transaction) IsIncome() bool {
	return t.Amount.IsPositive()
}

// AbsAmount returns the absolute value of the amount
func (t *Transaction) AbsAmount() decimal.Decimal {
	return t.Amount.Abs()
}

// Schema records which optional columns the source file carried.
// It is computed once when the table is built.
type Schema struct {
	HasCategory    bool `json:"has_category"`
	HasInstitution bool `json:"has_institution"`
	HasCountry     bool `json:"has_country"`
	HasDescription bool `json:"has_description"`
}

// Columns returns the column names in canonical order
func (s Schema) Columns() []string {
	cols := []string{"Date", "Amount"}
	if s.HasCategory {
		cols = append(cols, "Category")
	}
	if s.HasInstitution {
		cols = append(cols, "Institution")
	}
	if s.HasCountry {
		cols = append(cols, "Country")
	}
	if s.HasDescription {
		cols = append(cols, "Description")
	}
	return cols
}

// Table is the in-memory transaction dataset for one session.
// Methods never modify the receiver; derived tables share its Schema.
type Table struct {
	Transactions []Transaction
	Schema       Schema
}

// NewTable creates a Table from a slice and a schema
func NewTable(transactions []Transaction, schema Schema) *Table {
	return &Table{Transactions: transactions, Schema: schema}
}

// Len returns the number of transactions
func (tb *Table) Len() int {
	return len(tb.Transactions)
}

// IsEmpty reports whether the table has no rows
func (tb *Table) IsEmpty() bool {
	return len(tb.Transactions) == 0
}

// Hash returns a content hash over the schema and every row in order
func (tb *Table) Hash() string {
	h := sha256.New()
	for _, col := range tb.Schema.Columns() {
		h.Write([]byte(col))
		h.Write([]byte{0x1f})
	}
	h.Write([]byte{0x1e})
	for _, t := range tb.Transactions {
		for _, field := range []string{
			t.Date.Format(DateLayout),
			t.Amount.String(),
			t.Category,
			t.Institution,
			t.Country,
			t.Description,
		} {
			h.Write([]byte(field))
			h.Write([]byte{0x1f})
		}
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Where returns the rows for which keep returns true
func (tb *Table) Where(keep func(t *Transaction) bool) *Table {
	result := &Table{Schema: tb.Schema}
	for i := range tb.Transactions {
		if keep(&tb.Transactions[i]) {
			result.Transactions = append(result.Transactions, tb.Transactions[i])
		}
	}
	return result
}

// Expenses returns transactions with a negative amount
func (tb *Table) Expenses() *Table {
	return tb.Where(func(t *Transaction) bool { return t.IsExpense() })
}

// Incomes returns transactions with a positive amount
func (tb *Table) Incomes() *Table {
	return tb.Where(func(t *Transaction) bool { return t.IsIncome() })
}

// FilterByDateRange returns transactions within the date range (inclusive)
func (tb *Table) FilterByDateRange(start, end time.Time) *Table {
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 999999999, time.UTC)

	return tb.Where(func(t *Transaction) bool {
		return !t.Date.Before(startDay) && !t.Date.After(endDay)
	})
}

// SumAmount returns the exact sum of all amounts
func (tb *Table) SumAmount() decimal.Decimal {
	sum := decimal.Zero
	for _, t := range tb.Transactions {
		sum = sum.Add(t.Amount)
	}
	return sum
}

// SortByDateDesc returns a copy sorted by date (descending, stable)
func (tb *Table) SortByDateDesc() *Table {
	sorted := tb.Copy()
	sort.SliceStable(sorted.Transactions, func(i, j int) bool {
		return sorted.Transactions[i].Date.After(sorted.Transactions[j].Date)
	})
	return sorted
}

// MinDate returns the earliest transaction date
func (tb *Table) MinDate() time.Time {
	if len(tb.Transactions) == 0 {
		return time.Time{}
	}
	minDate := tb.Transactions[0].Date
	for _, t := range tb.Transactions[1:] {
		if t.Date.Before(minDate) {
			minDate = t.Date
		}
	}
	return minDate
}

// MaxDate returns the latest transaction date
func (tb *Table) MaxDate() time.Time {
	if len(tb.Transactions) == 0 {
		return time.Time{}
	}
	maxDate := tb.Transactions[0].Date
	for _, t := range tb.Transactions[1:] {
		if t.Date.After(maxDate) {
			maxDate = t.Date
		}
	}
	return maxDate
}

// Categories returns a sorted list of unique non-empty categories
func (tb *Table) Categories() []string {
	return tb.distinct(func(t *Transaction) string { return t.Category })
}

// Institutions returns a sorted list of unique non-empty institutions
func (tb *Table) Institutions() []string {
	return tb.distinct(func(t *Transaction) string { return t.Institution })
}

// Countries returns a sorted list of unique non-empty countries
func (tb *Table) Countries() []string {
	return tb.distinct(func(t *Transaction) string { return t.Country })
}

func (tb *Table) distinct(field func(t *Transaction) string) []string {
	seen := make(map[string]bool)
	var values []string
	for i := range tb.Transactions {
		v := field(&tb.Transactions[i])
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// Paginate returns the rows for the given page
func (tb *Table) Paginate(page, perPage int) *Table {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 25
	}

	start := (page - 1) * perPage
	if start >= len(tb.Transactions) {
		return &Table{Schema: tb.Schema}
	}

	end := start + perPage
	if end > len(tb.Transactions) {
		end = len(tb.Transactions)
	}

	return &Table{Transactions: tb.Transactions[start:end], Schema: tb.Schema}
}

// TotalPages returns the number of pages for the given page size
func (tb *Table) TotalPages(perPage int) int {
	if perPage < 1 {
		perPage = 25
	}
	return (len(tb.Transactions) + perPage - 1) / perPage
}

// Copy creates a shallow copy of the Table
func (tb *Table) Copy() *Table {
	copied := make([]Transaction, len(tb.Transactions))
	copy(copied, tb.Transactions)
	return &Table{Transactions: copied, Schema: tb.Schema}
}
