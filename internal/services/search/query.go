package search

import (
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"findash/internal/errs"
	"findash/internal/models"
)

// FromValues reads criteria from query parameters:
// q, category, institution, start, end, min, max and the repeatable
// categories/institutions multi-selects.
func FromValues(v url.Values) (Criteria, error) {
	c := Criteria{
		Text:         strings.TrimSpace(v.Get("q")),
		Category:     v.Get("category"),
		Institution:  v.Get("institution"),
		Categories:   nonEmpty(v["categories"]),
		Institutions: nonEmpty(v["institutions"]),
	}

	var err error
	if c.Start, err = parseDate(v.Get("start")); err != nil {
		return Criteria{}, err
	}
	if c.End, err = parseDate(v.Get("end")); err != nil {
		return Criteria{}, err
	}
	if c.Min, err = parseAmount(v.Get("min")); err != nil {
		return Criteria{}, err
	}
	if c.Max, err = parseAmount(v.Get("max")); err != nil {
		return Criteria{}, err
	}

	return c, c.Validate()
}

func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return nil, errs.Newf(errs.KindInvalidParameter, "search", "invalid date %q", s)
	}
	return &d, nil
}

func parseAmount(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, errs.Newf(errs.KindInvalidParameter, "search", "invalid amount %q", s)
	}
	return &d, nil
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
