package dataloader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"findash/internal/errs"
	"findash/internal/models"
	"findash/internal/services/storage"
)

// DataLoader decodes uploaded bank exports into a transaction table
type DataLoader struct {
	vault *storage.Vault
	log   zerolog.Logger
}

// Report describes a decoded upload for the status line
type Report struct {
	Filename  string   `json:"filename"`
	Rows      int      `json:"rows"`
	Columns   []string `json:"columns"`
	StartDate string   `json:"start_date,omitempty"`
	EndDate   string   `json:"end_date,omitempty"`
	Skipped   int      `json:"skipped"`
	Encrypted bool     `json:"encrypted"`
	Message   string   `json:"message"`
}

// columnMappings maps common bank export column names to our standard names.
// Matching is case-insensitive.
var columnMappings = map[string][]string{
	"Date": {
		"date", "transaction date", "posted date", "post date",
		"trans date", "posting date", "value date", "fecha",
	},
	"Description": {
		"description", "memo", "details", "payee", "name",
		"transaction description", "merchant", "narrative",
		"concepto", "descripcion", "descripción",
	},
	"Amount": {
		"amount", "value", "transaction amount", "sum", "importe", "monto",
	},
	"Category": {
		"category", "type", "category name", "categoria", "categoría",
	},
	"Institution": {
		"institution", "bank", "account", "account name", "banco", "entidad",
	},
	"Country": {
		"country", "country name", "pais", "país",
	},
	"Debit": {
		"debit", "withdrawal", "withdrawals", "money out", "expense",
	},
	"Credit": {
		"credit", "deposit", "deposits", "money in", "income",
	},
}

var aliasIndex = func() map[string]string {
	idx := make(map[string]string)
	for standard, variants := range columnMappings {
		for _, v := range variants {
			idx[v] = standard
		}
	}
	return idx
}()

// New creates a DataLoader. Encrypted uploads are opened with the vault.
func New(vault *storage.Vault, log zerolog.Logger) *DataLoader {
	return &DataLoader{vault: vault, log: log}
}

// normalizeColumnName maps a bank export column name to our standard name
func normalizeColumnName(col string) string {
	col = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
	if standard, ok := aliasIndex[strings.ToLower(col)]; ok {
		return standard
	}
	return col
}

// buildColumnIndex creates a normalized column index from the header row
func buildColumnIndex(header []string) map[string]int {
	colIndex := make(map[string]int)
	for i, col := range header {
		normalized := normalizeColumnName(col)
		if _, exists := colIndex[normalized]; !exists {
			colIndex[normalized] = i
		}
	}
	return colIndex
}

// Decode parses an upload by its extension. Age-encrypted content is
// decrypted first; a trailing ".age" on the filename is ignored.
func (dl *DataLoader) Decode(data []byte, filename string) (*models.Table, Report, error) {
	const op = "decode"
	report := Report{Filename: filename}

	if storage.IsEncrypted(data) {
		plain, err := dl.vault.Open(data)
		if err != nil {
			return nil, report, errs.Wrap(errs.KindDecode, op, err)
		}
		data = plain
		report.Encrypted = true
	}

	var records [][]string
	var err error
	spreadsheet := false

	switch ext := strings.ToLower(filepath.Ext(strings.TrimSuffix(strings.ToLower(filename), ".age"))); ext {
	case ".csv":
		records, err = readCSV(data)
	case ".xlsx":
		records, err = readXLSX(data)
		spreadsheet = true
	case ".xls":
		records, err = readXLS(data)
		spreadsheet = true
	default:
		return nil, report, errs.Newf(errs.KindDecode, op, "unsupported file type %q, expected .csv, .xls or .xlsx", ext)
	}
	if err != nil {
		return nil, report, errs.Wrap(errs.KindDecode, op, err)
	}

	tb, skipped, err := dl.buildTable(records, filename, spreadsheet)
	if err != nil {
		return nil, report, err
	}

	report.Rows = tb.Len()
	report.Columns = trimAll(records[0])
	report.Skipped = skipped
	if !tb.IsEmpty() {
		report.StartDate = tb.MinDate().Format(models.DateLayout)
		report.EndDate = tb.MaxDate().Format(models.DateLayout)
	}
	report.Message = report.message()

	dl.log.Info().
		Str("file", filename).
		Int("rows", report.Rows).
		Int("skipped", skipped).
		Bool("encrypted", report.Encrypted).
		Msg("upload decoded")

	return tb, report, nil
}

func (r Report) message() string {
	msg := fmt.Sprintf("file '%s' loaded: %d rows; columns: %s", r.Filename, r.Rows, strings.Join(r.Columns, ", "))
	if r.StartDate != "" {
		msg += fmt.Sprintf("; dates: %s to %s", r.StartDate, r.EndDate)
	}
	return msg
}

// buildTable maps records onto transactions. Rows whose date or amount
// cannot be parsed are skipped and counted.
func (dl *DataLoader) buildTable(records [][]string, filename string, spreadsheet bool) (*models.Table, int, error) {
	const op = "decode"

	if len(records) == 0 {
		return nil, 0, errs.New(errs.KindDecode, op, "file has no header row")
	}

	colIndex := buildColumnIndex(records[0])

	_, hasAmount := colIndex["Amount"]
	_, hasDebit := colIndex["Debit"]
	_, hasCredit := colIndex["Credit"]
	useDebitCredit := !hasAmount && (hasDebit || hasCredit)

	if _, ok := colIndex["Date"]; !ok {
		return nil, 0, errs.Newf(errs.KindMissingColumn, op, "missing required column: Date (tried: %v)", columnMappings["Date"])
	}
	if !hasAmount && !useDebitCredit {
		return nil, 0, errs.Newf(errs.KindMissingColumn, op, "missing required column: Amount or Debit/Credit (tried: %v)", columnMappings["Amount"])
	}

	if useDebitCredit {
		dl.log.Debug().Str("file", filename).Msg("using Debit/Credit columns instead of Amount")
	}

	schema := models.Schema{}
	_, schema.HasCategory = colIndex["Category"]
	_, schema.HasInstitution = colIndex["Institution"]
	_, schema.HasCountry = colIndex["Country"]
	_, schema.HasDescription = colIndex["Description"]

	field := func(record []string, name string) string {
		if idx, ok := colIndex[name]; ok && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	dates := make([]string, 0, len(records)-1)
	for _, record := range records[1:] {
		dates = append(dates, field(record, "Date"))
	}
	dayFirst := dateOrder(dates)
	if dayFirst {
		dl.log.Debug().Str("file", filename).Msg("reading dates day first")
	}

	var transactions []models.Transaction
	skipped := 0

	for i, record := range records[1:] {
		line := i + 2
		if isBlank(record) {
			continue
		}

		dateStr := field(record, "Date")
		date, ok := parseDate(dateStr, spreadsheet, dayFirst)
		if !ok {
			dl.log.Warn().Str("file", filename).Int("line", line).Str("value", dateStr).Msg("could not parse date")
			skipped++
			continue
		}

		var amount decimal.Decimal
		if useDebitCredit {
			amount, ok = parseDebitCredit(record, colIndex)
		} else {
			amount, ok = parseAmount(field(record, "Amount"))
		}
		if !ok {
			dl.log.Warn().Str("file", filename).Int("line", line).Msg("could not parse amount")
			skipped++
			continue
		}

		transactions = append(transactions, models.Transaction{
			Date:        date,
			Amount:      amount,
			Category:    field(record, "Category"),
			Institution: field(record, "Institution"),
			Country:     field(record, "Country"),
			Description: field(record, "Description"),
		})
	}

	return models.NewTable(transactions, schema), skipped, nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("file is empty")
	}
	return records, nil
}

// sniffDelimiter picks the most frequent of comma, semicolon and tab on the
// header line
func sniffDelimiter(data []byte) rune {
	header := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		header = data[:i]
	}

	best, bestCount := ',', bytes.Count(header, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(header, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error opening xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("error reading sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, errors.New("first sheet is empty")
	}
	return rows, nil
}

func readXLS(data []byte) (records [][]string, err error) {
	// The xls parser panics on some malformed workbooks and on rows absent
	// from the sheet.
	defer func() {
		if r := recover(); r != nil {
			records, err = nil, fmt.Errorf("error reading xls: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("error opening xls: %w", err)
	}
	if wb == nil || wb.NumSheets() == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	sheet := wb.GetSheet(0)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheetRow(sheet, i)
		if row == nil {
			records = append(records, nil)
			continue
		}
		record := make([]string, row.LastCol()+1)
		for j := row.FirstCol(); j <= row.LastCol(); j++ {
			record[j] = row.Col(j)
		}
		records = append(records, record)
	}

	for len(records) > 0 && isBlank(records[0]) {
		records = records[1:]
	}
	if len(records) == 0 {
		return nil, errors.New("first sheet is empty")
	}
	return records, nil
}

func sheetRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

// parseDebitCredit combines Debit and Credit columns into a single amount.
// Credits are positive (income), Debits are negative (expenses). A row with
// both empty has a zero amount.
func parseDebitCredit(record []string, colIndex map[string]int) (decimal.Decimal, bool) {
	amount := decimal.Zero

	if idx, ok := colIndex["Credit"]; ok && idx < len(record) {
		if s := strings.TrimSpace(record[idx]); s != "" {
			credit, ok := parseAmount(s)
			if !ok {
				return decimal.Zero, false
			}
			if !credit.IsZero() {
				amount = credit.Abs()
			}
		}
	}

	if idx, ok := colIndex["Debit"]; ok && idx < len(record) {
		if s := strings.TrimSpace(record[idx]); s != "" {
			debit, ok := parseAmount(s)
			if !ok {
				return decimal.Zero, false
			}
			if !debit.IsZero() {
				amount = debit.Abs().Neg()
			}
		}
	}

	return amount, true
}

var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02.01.2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	time.RFC3339,
}

// Numeric layouts whose field order is ambiguous. One order is chosen per
// column by dateOrder.
var (
	monthFirstFormats = []string{"1/2/2006", "1-2-2006"}
	dayFirstFormats   = []string{"2/1/2006", "2-1-2006"}
)

// dateOrder reports whether a date column is written day first. A value
// that only parses one way votes for that order; the column reads day first
// when more values reject month-first than reject day-first.
func dateOrder(values []string) (dayFirst bool) {
	monthMisses, dayMisses := 0, 0
	for _, v := range values {
		v = strings.TrimSpace(v)
		_, monthOK := parseLayouts(v, monthFirstFormats)
		_, dayOK := parseLayouts(v, dayFirstFormats)
		if monthOK == dayOK {
			continue
		}
		if !monthOK {
			monthMisses++
		}
		if !dayOK {
			dayMisses++
		}
	}
	return monthMisses > dayMisses
}

func parseLayouts(s string, layouts []string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return day(t), true
		}
	}
	return time.Time{}, false
}

// parseDate tries multiple date formats, reading ambiguous numeric dates in
// the given field order. Spreadsheet cells may also hold an Excel serial day
// number or the month-only form the xls reader emits for built-in date
// formats. Results are truncated to the day in UTC.
func parseDate(s string, spreadsheet, dayFirst bool) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if t, ok := parseLayouts(s, dateFormats); ok {
		return t, true
	}

	ordered := monthFirstFormats
	if dayFirst {
		ordered = dayFirstFormats
	}
	if t, ok := parseLayouts(s, ordered); ok {
		return t, true
	}

	if spreadsheet {
		if t, err := time.Parse("2006.01", s); err == nil {
			return t, true
		}
		if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
			if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
				return day(t), true
			}
		}
	}

	return time.Time{}, false
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// parseAmount parses an amount string, handling currency symbols, thousands
// separators, decimal commas and parentheses
func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.NewReplacer("$", "", "€", "", "£", "", " ", "", "\u00a0", "").Replace(s)
	s = normalizeSeparators(strings.TrimSpace(s))
	if s == "" {
		return decimal.Zero, false
	}

	// (100.00) -> -100.00
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + s[1:len(s)-1]
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return amount, true
}

// normalizeSeparators rewrites "1.234,56" and "12,5" to a dot decimal and
// drops thousands commas from "1,234.56" and "1,234".
func normalizeSeparators(s string) string {
	comma := strings.LastIndex(s, ",")
	if comma < 0 {
		return s
	}
	dot := strings.LastIndex(s, ".")
	switch {
	case dot > comma:
		return strings.ReplaceAll(s, ",", "")
	case dot >= 0:
		return strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
	case strings.Count(s, ",") == 1 && len(strings.TrimRight(s[comma+1:], ")")) != 3:
		return strings.Replace(s, ",", ".", 1)
	default:
		return strings.ReplaceAll(s, ",", "")
	}
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.TrimSpace(strings.TrimPrefix(s, "\ufeff")))
	}
	return out
}
