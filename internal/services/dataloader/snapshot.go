package dataloader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"findash/internal/errs"
	"findash/internal/models"
)

// SnapshotDateLayout is the ISO form dates take in a snapshot
const SnapshotDateLayout = "2006-01-02T15:04:05.000"

// Snapshot is the split-orientation tabular JSON used to persist and
// exchange a table
type Snapshot struct {
	Columns []string `json:"columns"`
	Index   []int    `json:"index"`
	Data    [][]any  `json:"data"`
}

// EncodeSnapshot serializes a table. Amounts are written as bare JSON numbers
// carrying the exact decimal text.
func EncodeSnapshot(tb *models.Table) ([]byte, error) {
	columns := tb.Schema.Columns()
	snap := Snapshot{
		Columns: columns,
		Index:   make([]int, tb.Len()),
		Data:    make([][]any, tb.Len()),
	}

	for i := range tb.Transactions {
		t := &tb.Transactions[i]
		row := make([]any, 0, len(columns))
		for _, col := range columns {
			switch col {
			case "Date":
				row = append(row, t.Date.Format(SnapshotDateLayout))
			case "Amount":
				row = append(row, json.RawMessage(t.Amount.String()))
			case "Category":
				row = append(row, t.Category)
			case "Institution":
				row = append(row, t.Institution)
			case "Country":
				row = append(row, t.Country)
			case "Description":
				row = append(row, t.Description)
			}
		}
		snap.Index[i] = i
		snap.Data[i] = row
	}

	out, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return out, nil
}

// DecodeSnapshot rebuilds a table from its snapshot. Dates may be ISO
// strings or epoch milliseconds.
func DecodeSnapshot(data []byte) (*models.Table, error) {
	const op = "snapshot"

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var snap Snapshot
	if err := dec.Decode(&snap); err != nil {
		return nil, errs.Wrap(errs.KindDecode, op, err)
	}

	colIndex := make(map[string]int, len(snap.Columns))
	for i, col := range snap.Columns {
		colIndex[col] = i
	}
	dateIdx, hasDate := colIndex["Date"]
	amountIdx, hasAmount := colIndex["Amount"]
	if !hasDate || !hasAmount {
		return nil, errs.Newf(errs.KindMissingColumn, op, "snapshot needs Date and Amount columns, has %v", snap.Columns)
	}

	schema := models.Schema{}
	_, schema.HasCategory = colIndex["Category"]
	_, schema.HasInstitution = colIndex["Institution"]
	_, schema.HasCountry = colIndex["Country"]
	_, schema.HasDescription = colIndex["Description"]

	transactions := make([]models.Transaction, 0, len(snap.Data))
	for i, row := range snap.Data {
		if len(row) != len(snap.Columns) {
			return nil, errs.Newf(errs.KindDecode, op, "row %d has %d values, want %d", i, len(row), len(snap.Columns))
		}

		date, err := snapshotDate(row[dateIdx])
		if err != nil {
			return nil, errs.Wrap(errs.KindDecode, op, fmt.Errorf("row %d: %w", i, err))
		}
		amount, err := snapshotAmount(row[amountIdx])
		if err != nil {
			return nil, errs.Wrap(errs.KindDecode, op, fmt.Errorf("row %d: %w", i, err))
		}

		text := func(col string) string {
			idx, ok := colIndex[col]
			if !ok || row[idx] == nil {
				return ""
			}
			if s, ok := row[idx].(string); ok {
				return s
			}
			return fmt.Sprint(row[idx])
		}

		transactions = append(transactions, models.Transaction{
			Date:        date,
			Amount:      amount,
			Category:    text("Category"),
			Institution: text("Institution"),
			Country:     text("Country"),
			Description: text("Description"),
		})
	}

	return models.NewTable(transactions, schema), nil
}

func snapshotDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case string:
		if t, ok := parseDate(strings.TrimSuffix(d, "Z"), false, false); ok {
			return t, nil
		}
		return time.Time{}, fmt.Errorf("invalid date %q", d)
	case json.Number:
		ms, err := d.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid epoch date %q", d)
		}
		return day(time.UnixMilli(ms)), nil
	default:
		return time.Time{}, fmt.Errorf("invalid date %v", v)
	}
}

func snapshotAmount(v any) (decimal.Decimal, error) {
	switch a := v.(type) {
	case json.Number:
		return decimal.NewFromString(a.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(a))
	default:
		return decimal.Zero, fmt.Errorf("invalid amount %v", v)
	}
}
