// Package search selects transaction rows by a conjunction of predicates.
package search

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"findash/internal/errs"
	"findash/internal/models"
)

// Criteria holds the optional predicates. Zero values mean "not supplied".
type Criteria struct {
	Text         string
	Category     string
	Institution  string
	Start        *time.Time
	End          *time.Time
	Min          *decimal.Decimal
	Max          *decimal.Decimal
	Categories   []string
	Institutions []string
}

// IsZero reports whether no predicate is set
func (c Criteria) IsZero() bool {
	return c.Key() == ""
}

// Key returns a canonical encoding of the criteria, stable across
// equivalent inputs, for use in cache keys.
func (c Criteria) Key() string {
	v := url.Values{}
	if c.Text != "" {
		v.Set("q", c.Text)
	}
	if c.Category != "" {
		v.Set("category", c.Category)
	}
	if c.Institution != "" {
		v.Set("institution", c.Institution)
	}
	if c.Start != nil {
		v.Set("start", c.Start.Format(models.DateLayout))
	}
	if c.End != nil {
		v.Set("end", c.End.Format(models.DateLayout))
	}
	if c.Min != nil {
		v.Set("min", c.Min.String())
	}
	if c.Max != nil {
		v.Set("max", c.Max.String())
	}
	for _, s := range sortedCopy(c.Categories) {
		v.Add("categories", s)
	}
	for _, s := range sortedCopy(c.Institutions) {
		v.Add("institutions", s)
	}
	return v.Encode()
}

// Validate rejects inverted ranges
func (c Criteria) Validate() error {
	if c.Start != nil && c.End != nil && c.Start.After(*c.End) {
		return errs.New(errs.KindInvalidParameter, "search", "start date is after end date")
	}
	if c.Min != nil && c.Max != nil && c.Min.GreaterThan(*c.Max) {
		return errs.New(errs.KindInvalidParameter, "search", "min amount is greater than max amount")
	}
	return nil
}

// Apply returns the rows satisfying every supplied predicate. The result has
// the input's schema and may be empty.
func Apply(tb *models.Table, c Criteria) *models.Table {
	result := tb

	if c.Start != nil || c.End != nil {
		start, end := tb.MinDate(), tb.MaxDate()
		if c.Start != nil {
			start = *c.Start
		}
		if c.End != nil {
			end = *c.End
		}
		result = result.FilterByDateRange(start, end)
	}

	if c.Text != "" {
		result = filterByText(result, c.Text)
	}
	if c.Category != "" {
		result = result.Where(func(t *models.Transaction) bool { return t.Category == c.Category })
	}
	if c.Institution != "" {
		result = result.Where(func(t *models.Transaction) bool { return t.Institution == c.Institution })
	}
	if len(c.Categories) > 0 {
		set := toSet(c.Categories)
		result = result.Where(func(t *models.Transaction) bool { return set[t.Category] })
	}
	if len(c.Institutions) > 0 {
		set := toSet(c.Institutions)
		result = result.Where(func(t *models.Transaction) bool { return set[t.Institution] })
	}
	if c.Min != nil {
		result = result.Where(func(t *models.Transaction) bool { return t.Amount.GreaterThanOrEqual(*c.Min) })
	}
	if c.Max != nil {
		result = result.Where(func(t *models.Transaction) bool { return t.Amount.LessThanOrEqual(*c.Max) })
	}

	if result == tb {
		return tb.Copy()
	}
	return result
}

// filterByText keeps rows whose description contains text, ignoring case.
// Rows without a description never match.
func filterByText(tb *models.Table, text string) *models.Table {
	if !tb.Schema.HasDescription {
		return &models.Table{Schema: tb.Schema}
	}
	fold := cases.Fold()
	needle := fold.String(text)
	return tb.Where(func(t *models.Transaction) bool {
		if t.Description == "" {
			return false
		}
		return strings.Contains(fold.String(t.Description), needle)
	})
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func sortedCopy(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	sort.Strings(out)
	return out
}
