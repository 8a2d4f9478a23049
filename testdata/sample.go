// Package testdata embeds the sample bank export used by tests, the demo
// session and the validator.
package testdata

import _ "embed"

// SampleCSV is an 18-month export covering January 2023 to June 2024 with
// every optional column and one unusually expensive month.
//
//go:embed sample.csv
var SampleCSV []byte

// SampleFilename is the name the sample is uploaded under
const SampleFilename = "sample.csv"
