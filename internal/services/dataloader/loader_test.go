package dataloader

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"findash/internal/errs"
	"findash/internal/services/storage"
)

func newLoader(t *testing.T) *DataLoader {
	t.Helper()
	vault, err := storage.NewVault("")
	require.NoError(t, err)
	return New(vault, zerolog.Nop())
}

func TestNormalizeColumnName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// Date variations
		{"Date", "Date"},
		{"date", "Date"},
		{"DATE", "Date"},
		{"Transaction Date", "Date"},
		{"Posted Date", "Date"},
		{"Fecha", "Date"},

		// Description variations
		{"Description", "Description"},
		{"Memo", "Description"},
		{"Payee", "Description"},
		{"Concepto", "Description"},

		// Amount variations
		{"Amount", "Amount"},
		{"AMOUNT", "Amount"},
		{"Transaction Amount", "Amount"},
		{"Importe", "Amount"},

		// Category variations
		{"Category", "Category"},
		{"Type", "Category"},

		// Institution and country
		{"Institution", "Institution"},
		{"Bank", "Institution"},
		{"Account Name", "Institution"},
		{"Country", "Country"},
		{"País", "Country"},

		// Debit/Credit variations
		{"Withdrawal", "Debit"},
		{"Money Out", "Debit"},
		{"Deposit", "Credit"},
		{"Money In", "Credit"},

		// Whitespace and byte order mark
		{"  Amount ", "Amount"},
		{"\ufeffDate", "Date"},

		// Unknown columns pass through unchanged
		{"Unknown Column", "Unknown Column"},
		{"Balance", "Balance"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := normalizeColumnName(tt.input)
			if result != tt.expected {
				t.Errorf("normalizeColumnName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestBuildColumnIndexFirstMatchWins(t *testing.T) {
	idx := buildColumnIndex([]string{"Date", "Transaction Date", "Amount"})
	assert.Equal(t, 0, idx["Date"])
	assert.Equal(t, 2, idx["Amount"])
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"-50.00", "-50", true},
		{"$1,234.56", "1234.56", true},
		{"(100.00)", "-100", true},
		{"€ 12,50", "12.5", true},
		{"1.234,56", "1234.56", true},
		{"1,234", "1234", true},
		{"-0.1", "-0.1", true},
		{"", "0", false},
		{"abc", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := parseAmount(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestParseDebitCredit(t *testing.T) {
	colIndex := map[string]int{"Date": 0, "Description": 1, "Debit": 2, "Credit": 3}

	tests := []struct {
		name     string
		record   []string
		expected string
	}{
		{"credit only", []string{"2024-01-01", "Deposit", "", "100.00"}, "100"},
		{"debit only", []string{"2024-01-01", "Purchase", "50.00", ""}, "-50"},
		{"debit with currency symbol", []string{"2024-01-01", "Purchase", "$75.50", ""}, "-75.5"},
		{"both empty", []string{"2024-01-01", "Unknown", "", ""}, "0"},
		{"debit already negative", []string{"2024-01-01", "Purchase", "-50.00", ""}, "-50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := parseDebitCredit(tt.record, colIndex)
			require.True(t, ok)
			if !result.Equal(decimal.RequireFromString(tt.expected)) {
				t.Errorf("parseDebitCredit() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	for _, s := range []string{"2024-01-15", "01/15/2024", "1/15/2024", "01-15-2024", "Jan 15, 2024", "15.01.2024", "2024-01-15T00:00:00.000", "2024-01-15T10:30:00Z"} {
		t.Run(s, func(t *testing.T) {
			got, ok := parseDate(s, false, false)
			require.True(t, ok)
			assert.Equal(t, want, got)
		})
	}

	for _, s := range []string{"2024-01-15", "15/01/2024", "15/1/2024", "15-01-2024", "15.01.2024"} {
		t.Run("day first "+s, func(t *testing.T) {
			got, ok := parseDate(s, false, true)
			require.True(t, ok)
			assert.Equal(t, want, got)
		})
	}

	got, ok := parseDate("45306", true, false)
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok = parseDate("45306", false, false)
	assert.False(t, ok)

	_, ok = parseDate("not a date", true, false)
	assert.False(t, ok)

	_, ok = parseDate("15/01/2024", false, false)
	assert.False(t, ok)
}

func TestDateOrder(t *testing.T) {
	tests := []struct {
		name     string
		values   []string
		dayFirst bool
	}{
		{"iso", []string{"2024-01-15", "2024-02-01"}, false},
		{"month first", []string{"01/15/2024", "02/03/2024"}, false},
		{"day first", []string{"15/01/2024", "03/02/2024"}, true},
		{"ambiguous defaults to month first", []string{"01/02/2024", "03/04/2024"}, false},
		{"day first later in the column", []string{"05/02/2023", "06/02/2023", "28/02/2023"}, true},
		{"blank and junk ignored", []string{"", "n/a", "13-01-2023"}, true},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.dayFirst, dateOrder(tt.values))
		})
	}
}

func TestDecodeDayFirstExport(t *testing.T) {
	csv := "Fecha;Importe;Categoria\n" +
		"13/01/2023;-12,50;Food\n" +
		"05/02/2023;-3,00;Food\n" +
		"28/02/2023;1.200,00;Salary\n"

	tb, report, err := newLoader(t).Decode([]byte(csv), "movimientos.csv")
	require.NoError(t, err)

	require.Equal(t, 3, tb.Len())
	assert.Zero(t, report.Skipped)
	assert.Equal(t, time.Date(2023, 1, 13, 0, 0, 0, 0, time.UTC), tb.Transactions[0].Date)
	assert.Equal(t, time.Date(2023, 2, 5, 0, 0, 0, 0, time.UTC), tb.Transactions[1].Date)
	assert.Equal(t, time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC), tb.Transactions[2].Date)
	assert.True(t, tb.Transactions[2].Amount.Equal(decimal.NewFromInt(1200)))
	assert.Equal(t, "2023-01-13", report.StartDate)
	assert.Equal(t, "2023-02-28", report.EndDate)
}

func TestDecodeCSVWithFlexibleColumns(t *testing.T) {
	tests := []struct {
		name           string
		csvContent     string
		expectedCount  int
		expectedAmount string
		expectedKind   errs.Kind
		errorContains  string
	}{
		{
			name: "standard format",
			csvContent: `Date,Description,Amount,Category
2024-01-15,Grocery Store,-50.00,Groceries
2024-01-16,Paycheck,3000.00,Income`,
			expectedCount:  2,
			expectedAmount: "-50",
		},
		{
			name: "bank format with Transaction Date and Memo",
			csvContent: `Transaction Date,Memo,Value
2024-01-15,Grocery Store,-50.00
2024-01-16,Paycheck,3000.00`,
			expectedCount:  2,
			expectedAmount: "-50",
		},
		{
			name: "debit credit format",
			csvContent: `Posted Date,Details,Debit,Credit
2024-01-15,Grocery Store,50.00,
2024-01-16,Paycheck,,3000.00`,
			expectedCount:  2,
			expectedAmount: "-50",
		},
		{
			name: "semicolon separated with decimal commas",
			csvContent: `Fecha;Concepto;Importe;Banco
15/01/2024;Mercadona;-50,00;Santander
2024-01-16;Nomina;3000,00;Santander`,
			expectedCount:  1,
			expectedAmount: "3000",
		},
		{
			name: "amount only is enough",
			csvContent: `Date,Amount
2024-01-15,-50.00`,
			expectedCount:  1,
			expectedAmount: "-50",
		},
		{
			name: "missing date column",
			csvContent: `Description,Amount
Grocery Store,-50.00`,
			expectedKind:  errs.KindMissingColumn,
			errorContains: "Date",
		},
		{
			name: "missing amount and debit/credit",
			csvContent: `Date,Description
2024-01-15,Grocery Store`,
			expectedKind:  errs.KindMissingColumn,
			errorContains: "Amount",
		},
		{
			name:          "malformed quoting",
			csvContent:    "Date,Amount\n2024-01-15,\"-50.00\n",
			expectedKind:  errs.KindDecode,
			errorContains: "csv",
		},
		{
			name:          "empty file",
			csvContent:    "",
			expectedKind:  errs.KindDecode,
			errorContains: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb, _, err := newLoader(t).Decode([]byte(tt.csvContent), "test.csv")

			if tt.expectedKind != "" {
				if err == nil {
					t.Fatalf("expected %s error containing %q, got nil", tt.expectedKind, tt.errorContains)
				}
				if errs.KindOf(err) != tt.expectedKind {
					t.Errorf("error kind = %q, want %q", errs.KindOf(err), tt.expectedKind)
				}
				if !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("error %q does not contain %q", err.Error(), tt.errorContains)
				}
				if tb != nil {
					t.Errorf("expected no table on error")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tb.Len() != tt.expectedCount {
				t.Fatalf("got %d transactions, want %d", tb.Len(), tt.expectedCount)
			}
			if !tb.Transactions[0].Amount.Equal(decimal.RequireFromString(tt.expectedAmount)) {
				t.Errorf("first transaction amount = %v, want %v", tb.Transactions[0].Amount, tt.expectedAmount)
			}
		})
	}
}

func TestDecodeReportAndSchema(t *testing.T) {
	csv := "Date,Amount,Category,Institution,Country,Description\n" +
		"2024-01-15,-50.00,Food,Bank A,Spain,Market\n" +
		"not-a-date,-10.00,Food,Bank A,Spain,Bad row\n" +
		"2024-02-01,abc,Food,Bank A,Spain,Bad amount\n" +
		"\n" +
		"2024-03-01,2000,Salary,Bank B,France,Payroll\n"

	tb, report, err := newLoader(t).Decode([]byte(csv), "bank.csv")
	require.NoError(t, err)

	assert.Equal(t, 2, tb.Len())
	assert.True(t, tb.Schema.HasCategory)
	assert.True(t, tb.Schema.HasInstitution)
	assert.True(t, tb.Schema.HasCountry)
	assert.True(t, tb.Schema.HasDescription)
	assert.Equal(t, "France", tb.Transactions[1].Country)

	assert.Equal(t, 2, report.Rows)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, "2024-01-15", report.StartDate)
	assert.Equal(t, "2024-03-01", report.EndDate)
	assert.Equal(t,
		"file 'bank.csv' loaded: 2 rows; columns: Date, Amount, Category, Institution, Country, Description; dates: 2024-01-15 to 2024-03-01",
		report.Message)
}

func TestDecodeUnsupportedExtension(t *testing.T) {
	_, _, err := newLoader(t).Decode([]byte("Date,Amount\n"), "statement.pdf")
	assert.ErrorIs(t, err, errs.ErrDecode)
}

func TestDecodeXLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Date", "Amount", "Category"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), -50.5, "Food"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"2024-02-01", 1200, "Salary"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	tb, report, err := newLoader(t).Decode(buf.Bytes(), "Export.XLSX")
	require.NoError(t, err)

	require.Equal(t, 2, tb.Len())
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), tb.Transactions[0].Date)
	assert.True(t, tb.Transactions[0].Amount.Equal(decimal.RequireFromString("-50.5")))
	assert.True(t, tb.Transactions[1].Amount.Equal(decimal.NewFromInt(1200)))
	assert.Equal(t, "Salary", tb.Transactions[1].Category)
	assert.Equal(t, []string{"Date", "Amount", "Category"}, report.Columns)
}

func TestDecodeXLSGarbage(t *testing.T) {
	_, _, err := newLoader(t).Decode([]byte("definitely not a workbook"), "old.xls")
	assert.ErrorIs(t, err, errs.ErrDecode)
}

func TestDecodeEncrypted(t *testing.T) {
	const passphrase = "correct horse battery"
	plain := []byte("Date,Amount\n2024-01-15,-50.00\n")

	sealed, err := storage.SealWithPassphrase(plain, passphrase, false)
	require.NoError(t, err)

	_, _, err = newLoader(t).Decode(sealed, "bank.csv.age")
	require.ErrorIs(t, err, errs.ErrDecode)
	assert.ErrorIs(t, err, storage.ErrLocked)

	vault, err := storage.NewVault(passphrase)
	require.NoError(t, err)
	tb, report, err := New(vault, zerolog.Nop()).Decode(sealed, "bank.csv.age")
	require.NoError(t, err)
	assert.Equal(t, 1, tb.Len())
	assert.True(t, report.Encrypted)
}
