// Package main provides the vcfload command-line tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/vcfload/internal/ingest"
	"github.com/inodb/vcfload/internal/output"
)

// Exit codes
const (
	ExitSuccess   = 0
	ExitError     = 1
	ExitUsage     = 2
	ExitCancelled = 130
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// exitError carries an exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(format string, args ...any) error {
	return &exitError{code: ExitUsage, err: fmt.Errorf(format, args...)}
}

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var ee *exitError
	if !errors.As(err, &ee) {
		// Argument and flag validation errors from cobra.
		ee = &exitError{code: ExitUsage, err: err}
	}
	if ee.err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", ee.err)
	}
	if ee.code == ExitUsage {
		fmt.Fprintln(stderr)
		cmd, _, ferr := root.Find(args)
		if ferr != nil || cmd == nil {
			cmd = root
		}
		cmd.SetOut(stderr)
		cmd.Usage()
	}
	return ee.code
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "vcfload <input-file> <database-name> [worker-count]",
		Short: "Load a VCF file into a variant store",
		Long: `Load a VCF file into a variant store.

The header is parsed first. INFO and ALT directives describe typed fields,
and the #CHROM line names the samples. Body lines are then split into
contiguous shards and ingested in parallel. Every line becomes a variant,
and every resolvable genotype becomes a call on its sample.

Use '-' as input-file to read from stdin. Gzipped input is detected
automatically.`,
		Example: `  vcfload calls.vcf.gz cohort
  vcfload --backend bolt calls.vcf cohort 8
  vcfload --backend elasticsearch --es-url http://es:9200 calls.vcf cohort
  vcfload --samples NA00001,NA00002 calls.vcf cohort`,
		Version:       fmt.Sprintf("%s (%s) built %s", version, commit, date),
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(cfgFile); err != nil {
				return &exitError{code: ExitError, err: err}
			}
			return nil
		},
		RunE: runIngest,
	}
	cmd.SetVersionTemplate("vcfload version {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: ~/.vcfload.yaml)")

	f := cmd.Flags()
	f.String("backend", "duckdb", "Store backend: duckdb, bolt, elasticsearch, memory")
	f.String("data-dir", "", "Directory for duckdb and bolt database files (default: ~/.vcfload)")
	f.String("es-url", "http://localhost:9200", "Elasticsearch URL")
	f.String("es-username", "", "Elasticsearch username")
	f.String("es-password", "", "Elasticsearch password")
	f.Int("workers", 0, "Number of ingestion workers (default: number of CPUs)")
	f.Float64("writes-per-second", 0, "Limit store writes per second across all workers (0: unlimited)")
	f.StringSlice("samples", nil, "Only ingest these samples (comma-separated)")
	f.Int("max-reported-errors", ingest.DefaultMaxReportedErrors, "Number of error messages kept in the summary")
	f.String("log-level", "info", "Log level: debug, info, warn, error")
	f.String("log-format", "console", "Log format: console, json")
	f.StringP("output-format", "f", "tab", "Summary format: tab, json")

	bindings := map[string]string{
		"store.backend":                "backend",
		"store.data_dir":               "data-dir",
		"store.elasticsearch.url":      "es-url",
		"store.elasticsearch.username": "es-username",
		"store.elasticsearch.password": "es-password",
		"ingest.workers":               "workers",
		"ingest.writes_per_second":     "writes-per-second",
		"ingest.samples":               "samples",
		"ingest.max_reported_errors":   "max-reported-errors",
		"log.level":                    "log-level",
		"log.format":                   "log-format",
		"output.format":                "output-format",
	}
	for key, flag := range bindings {
		viper.BindPFlag(key, f.Lookup(flag))
	}

	cmd.AddCommand(newConfigCmd())

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	input, database := args[0], args[1]
	if err := validDatabaseName(database); err != nil {
		return &exitError{code: ExitUsage, err: err}
	}

	workers := viper.GetInt("ingest.workers")
	if len(args) == 3 {
		n, err := strconv.Atoi(args[2])
		if err != nil || n < 1 {
			return usageError("worker-count must be a positive integer, got %q", args[2])
		}
		workers = n
	}

	format := viper.GetString("output.format")
	if format != "tab" && format != "json" {
		return usageError("unknown output format %q (want tab or json)", format)
	}

	logger, err := newLogger(viper.GetString("log.level"), viper.GetString("log.format"))
	if err != nil {
		return &exitError{code: ExitUsage, err: err}
	}
	defer logger.Sync()

	client, err := openStore(database, logger)
	if err != nil {
		return &exitError{code: ExitError, err: fmt.Errorf("open store: %w", err)}
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coord := ingest.NewCoordinator(client, ingest.Options{
		Workers:           workers,
		WritesPerSecond:   viper.GetFloat64("ingest.writes_per_second"),
		Samples:           viper.GetStringSlice("ingest.samples"),
		MaxReportedErrors: viper.GetInt("ingest.max_reported_errors"),
	})
	coord.SetLogger(logger)

	logger.Info("starting ingestion",
		zap.String("input", input),
		zap.String("database", database),
		zap.String("backend", viper.GetString("store.backend")))

	sum, runErr := coord.Run(ctx, input)
	if sum != nil {
		if err := writeSummary(cmd.OutOrStdout(), format, database, sum); err != nil {
			return &exitError{code: ExitError, err: fmt.Errorf("write summary: %w", err)}
		}
	}

	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, ingest.ErrCancelled):
		return &exitError{code: ExitCancelled, err: runErr}
	default:
		return &exitError{code: ExitError, err: runErr}
	}
}

func writeSummary(w io.Writer, format, database string, sum *ingest.Summary) error {
	if format == "json" {
		return output.WriteJSON(w, database, sum)
	}
	sw := output.NewSummaryWriter(w)
	if err := sw.Write(database, sum); err != nil {
		return err
	}
	return sw.Flush()
}
