// Package main prints the full analysis of a transaction export as JSON.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"findash/internal/config"
	"findash/internal/errs"
	"findash/internal/logger"
	"findash/internal/models"
	"findash/internal/services/anomaly"
	"findash/internal/services/dataloader"
	"findash/internal/services/forecast"
	"findash/internal/services/metrics"
	"findash/internal/services/recommend"
	"findash/internal/services/segment"
	"findash/internal/services/storage"
)

// Section holds one analysis or the reason it could not run
type Section[T any] struct {
	Result T      `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

// Report is the CLI output document
type Report struct {
	Upload          dataloader.Report                `json:"upload"`
	Summary         models.Summary                   `json:"summary"`
	Forecast        Section[*models.Forecast]        `json:"forecast"`
	Segments        Section[*models.Segmentation]    `json:"segments"`
	Anomalies       Section[*models.AnomalyReport]   `json:"anomalies"`
	Recommendations Section[[]models.Recommendation] `json:"recommendations"`
}

type options struct {
	months        int
	contamination float64
	rulesFile     string
	snapshotPath  string
	seal          bool
	input         string
}

// passphraseFunc supplies the passphrase for encrypted input or sealed output
type passphraseFunc func() (string, error)

func main() {
	log := logger.New(os.Getenv("FINDASH_LOG_LEVEL"), true)

	if err := run(os.Args[1:], os.Stdout, promptPassphrase, log); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.IntVar(&opts.months, "months", 6, "forecast horizon in months")
	fs.Float64Var(&opts.contamination, "contamination", 0, "expected share of anomalous months (default from rules)")
	fs.StringVar(&opts.rulesFile, "rules", "", "YAML file overriding the business thresholds")
	fs.StringVar(&opts.snapshotPath, "snapshot", "", "write a JSON snapshot of the table to this path")
	fs.BoolVar(&opts.seal, "seal", false, "encrypt the snapshot with a passphrase")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: report [flags] FILE\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return opts, errors.New("exactly one input file is required")
	}
	if opts.seal && opts.snapshotPath == "" {
		return opts, errors.New("-seal requires -snapshot")
	}
	opts.input = fs.Arg(0)
	return opts, nil
}

func run(args []string, stdout io.Writer, passphrase passphraseFunc, log zerolog.Logger) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	rules := models.DefaultRules()
	if opts.rulesFile != "" {
		if rules, err = config.LoadRules(opts.rulesFile); err != nil {
			return err
		}
	}
	if opts.contamination == 0 {
		opts.contamination = rules.DefaultContamination
	}

	data, err := os.ReadFile(opts.input)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	var pass string
	if storage.IsEncrypted(data) || opts.seal {
		if pass, err = passphrase(); err != nil {
			return err
		}
	}

	vault, err := storage.NewVault(pass)
	if err != nil {
		return err
	}
	loader := dataloader.New(vault, logger.WithComponent(log, "dataloader"))

	tb, upload, err := loader.Decode(data, filepath.Base(opts.input))
	if err != nil {
		return err
	}
	log.Info().Msg(upload.Message)

	report := Report{
		Upload:  upload,
		Summary: metrics.New().Summary(tb),
	}
	report.Forecast = section(func() (*models.Forecast, error) {
		fc, err := forecast.FromTable(tb, opts.months, rules)
		return &fc, err
	})
	report.Segments = section(func() (*models.Segmentation, error) {
		seg, err := segment.Segment(tb, rules)
		return &seg, err
	})
	report.Anomalies = section(func() (*models.AnomalyReport, error) {
		an, err := anomaly.FromTable(tb, opts.contamination, rules)
		return &an, err
	})
	report.Recommendations = section(func() ([]models.Recommendation, error) {
		return recommend.Recommend(tb, rules)
	})

	if opts.snapshotPath != "" {
		if err := writeSnapshot(vault, tb, opts.snapshotPath, opts.seal); err != nil {
			return err
		}
		log.Info().Str("path", opts.snapshotPath).Bool("sealed", opts.seal).Msg("snapshot written")
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// section runs one analysis. Domain failures are reported in place so the
// other sections still print.
func section[T any](fn func() (T, error)) Section[T] {
	result, err := fn()
	if err != nil {
		return Section[T]{Error: err.Error(), Kind: string(errs.KindOf(err))}
	}
	return Section[T]{Result: result}
}

func writeSnapshot(vault *storage.Vault, tb *models.Table, path string, seal bool) error {
	data, err := dataloader.EncodeSnapshot(tb)
	if err != nil {
		return err
	}
	return vault.WriteFile(path, data, 0600, seal)
}

// promptPassphrase reads FINDASH_PASSPHRASE, or asks on the terminal
func promptPassphrase() (string, error) {
	if pass := os.Getenv("FINDASH_PASSPHRASE"); pass != "" {
		return pass, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("passphrase required: set FINDASH_PASSPHRASE or run interactively")
	}

	fmt.Fprint(os.Stderr, "Passphrase: ")
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(pass), nil
}
