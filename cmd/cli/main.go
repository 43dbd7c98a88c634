package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"goharmonic/adapters/ingest"
	"goharmonic/adapters/postgres"
	"goharmonic/domain/core"
	"goharmonic/internal"
	"goharmonic/internal/config"
	"goharmonic/internal/container"
	"goharmonic/internal/report"
	"goharmonic/ports"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "goharmonic",
		Short:         "Harmonic k-index analysis of asteroseismic catalogs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newAnalyzeCmd(),
		newInspectCmd(),
		newValidateCmd(),
		newHistoryCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(runConfig string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if runConfig != "" {
		cfg.RunConfigPath = runConfig
	}
	return cfg, nil
}

func newAnalyzeCmd() *cobra.Command {
	var runConfig, results, transcript, reportPath string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the full pipeline: load, merge, derive k, test, score",
		Long: `Run the full pipeline once and write the results file and transcript.

Example: goharmonic analyze --config configs/yu2018.yaml --report outputs/report.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(runConfig)
			if err != nil {
				return err
			}
			if results != "" {
				cfg.Results.ResultsFile = results
			}
			if transcript != "" {
				cfg.Results.TranscriptFile = transcript
			}
			return runAnalyze(cmd.Context(), cfg, reportPath, quiet)
		},
	}

	cmd.Flags().StringVar(&runConfig, "config", "", "Run configuration YAML (defaults to the built-in Yu et al. 2018 setup)")
	cmd.Flags().StringVar(&results, "results", "", "Results JSON path (overrides RESULTS_FILE)")
	cmd.Flags().StringVar(&transcript, "transcript", "", "Transcript path (overrides TRANSCRIPT_FILE)")
	cmd.Flags().StringVar(&reportPath, "report", "", "Also write a Markdown report to this path")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not echo the transcript to stdout")

	return cmd
}

// stdoutSink echoes transcript lines
type stdoutSink struct{}

func (stdoutSink) Save(string, interface{}) error { return nil }
func (stdoutSink) Log(line string) error {
	_, err := fmt.Println(line)
	return err
}

func runAnalyze(ctx context.Context, cfg *config.Config, reportPath string, quiet bool) error {
	logger := internal.NewLogger(internal.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	c, err := container.New(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Shutdown()

	if err := c.InitWithDatabase(ctx); err != nil {
		return err
	}

	var extra []ports.ResultSink
	if !quiet {
		extra = append(extra, stdoutSink{})
	}
	res, err := c.Execute(ctx, "", extra...)
	if err != nil {
		return fmt.Errorf("analysis aborted: %w", err)
	}

	if reportPath != "" {
		if err := os.MkdirAll(filepath.Dir(reportPath), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(reportPath, []byte(report.Markdown(res)), 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}

	fmt.Printf("\nRun %s: %.1f/%.1f %s\n", res.RunID, res.Score.Score, res.Score.MaxScore, strings.ToUpper(string(res.Score.Readiness)))
	fmt.Printf("Results: %s\n", cfg.Results.ResultsFile)
	fmt.Printf("Transcript: %s\n", cfg.Results.TranscriptFile)
	if len(res.Degraded) > 0 {
		fmt.Printf("Degraded stages:\n")
		for _, d := range res.Degraded {
			fmt.Printf("  - %s\n", d)
		}
	}
	return nil
}

func newInspectCmd() *cobra.Command {
	var format, idField, sheet string

	cmd := &cobra.Command{
		Use:   "inspect <path>",
		Short: "Profile a tabular catalog before choosing observables",
		Long: `Profile a CSV, TSV, VOTable or XLSX catalog: per-column counts,
positive value ranges and candidate period or frequency columns.

Example: goharmonic inspect data/candidates.vot --id-field KIC`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), args[0], format, idField, sheet)
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "csv, tsv, votable or xlsx (default: from the file extension)")
	cmd.Flags().StringVar(&idField, "id-field", "KIC", "Identifier column")
	cmd.Flags().StringVar(&sheet, "sheet", "", "Worksheet for xlsx files (default: first sheet)")

	return cmd
}

func formatFromExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv", ".tab":
		return config.FormatTSV
	case ".vot", ".votable", ".xml":
		return config.FormatVOTable
	case ".xlsx":
		return config.FormatXLSX
	default:
		return config.FormatCSV
	}
}

func runInspect(ctx context.Context, path, format, idField, sheet string) error {
	if format == "" {
		format = formatFromExtension(path)
	}
	reader := ingest.NewFileReader(config.SourceConfig{
		Name:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Format:  format,
		Path:    path,
		IDField: idField,
		Sheet:   sheet,
	}, internal.NewNopLogger())

	set, err := reader.Read(ctx)
	if err != nil {
		return err
	}
	profile := ingest.Inspect(set)

	fmt.Printf("Source: %s (%s)\n", profile.Source, format)
	fmt.Printf("Records: %d (%d malformed rows skipped)\n\n", profile.Records, profile.Malformed)
	fmt.Printf("%-20s %8s %8s %12s %12s %12s\n", "column", "non-null", "positive", "min", "median", "max")
	for _, c := range profile.Columns {
		if !c.Numeric {
			fmt.Printf("%-20s %8d %8s\n", c.Name, c.NonNull, "text")
			continue
		}
		fmt.Printf("%-20s %8d %8d %12.4g %12.4g %12.4g\n", c.Name, c.NonNull, c.Count, c.Min, c.Median, c.Max)
	}
	if len(profile.PeriodColumns) > 0 {
		fmt.Printf("\nCandidate period/frequency columns: %s\n", strings.Join(profile.PeriodColumns, ", "))
	}
	return nil
}

func newValidateCmd() *cobra.Command {
	var runConfig string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a run configuration and print the resolved settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			run := config.DefaultRunConfig()
			if runConfig != "" {
				var err error
				if run, err = config.LoadRun(runConfig); err != nil {
					return err
				}
			} else if err := run.Validate(); err != nil {
				return err
			}
			out, err := json.MarshalIndent(run, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			fmt.Printf("\nConfiguration %q is valid (%d sources)\n", run.Name, len(run.Sources))
			return nil
		},
	}

	cmd.Flags().StringVar(&runConfig, "config", "", "Run configuration YAML")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Print results stored in Postgres for a run (default: the latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("DATABASE_URL is required for history")
			}
			db, err := postgres.Open(cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()
			repo := postgres.NewResultRepository(db, cfg.Database.Table, "")

			var runID string
			if len(args) == 1 {
				id, err := core.ParseRunID(args[0])
				if err != nil {
					return err
				}
				runID = id.String()
			} else if runID, err = repo.LatestRunID(cmd.Context()); err != nil {
				return err
			}

			rows, err := repo.ListResults(cmd.Context(), runID)
			if err != nil {
				return err
			}
			fmt.Printf("Run %s (%d results)\n", runID, len(rows))
			for _, r := range rows {
				fmt.Printf("  %-24s %s\n", r.Key, string(r.Value))
			}
			return nil
		},
	}
	return cmd
}
