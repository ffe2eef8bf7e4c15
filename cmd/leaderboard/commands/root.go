// Package commands implements the leaderboard CLI.
package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/analysis"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/config"
	apperrors "github.com/ZanzyTHEbar/blueteam-leaderboard/internal/errors"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/ingest"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/monitoring"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/printer"
)

type globalOptions struct {
	configPath string
	verbose    bool
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "leaderboard",
		Short: "Blue Team annotation leaderboard",
		Long: `Aggregates a Blue Team annotation log into per-contributor and
per-category statistics, ranks contributors by a weighted composite of
volume, deflection quality and category coverage, and produces
self-contained share tokens that carry only anonymized aggregates.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(monitoring.NewTextLogger(cmd.ErrOrStderr(), level).Logger)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv(config.EnvPrefix+"CONFIG"), "path to a YAML config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newAnalyzeCmd(opts),
		newShareCmd(opts),
		newDecodeCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// SetVersionInfo sets the version string shown by --version
func SetVersionInfo(root *cobra.Command, v, c, d string) {
	root.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func newPrinter(cmd *cobra.Command) *printer.Printer {
	return printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func loadConfig(p *printer.Printer, opts *globalOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		appErr := apperrors.ToAppError(err)
		return nil, p.Error("Invalid configuration", err.Error(), appErr.Messages,
			[]string{"Fix the config file or the " + config.EnvPrefix + "* environment variables"})
	}
	return cfg, nil
}

// loadReport reads a CSV file ("-" for stdin), validates it and aggregates it
func loadReport(cmd *cobra.Command, p *printer.Printer, cfg *config.Config, path string) (*analysis.Report, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, p.Error("Cannot open dataset", err.Error(), nil,
				[]string{"Check the path, or pass - to read from stdin"})
		}
		defer apperrors.SafeClose(f, path)
		r = f
	}

	p.Step("Reading %s\n", path)
	table, err := ingest.ReadCSV(r)
	if err != nil {
		return nil, reportError(p, "Cannot parse dataset", err)
	}

	result := ingest.Validate(table, cfg.Limits.MaxRows)
	if !result.Valid() {
		return nil, p.Error("Dataset failed validation", "The file cannot be aggregated.", result.Errors,
			[]string{"Export the annotation sheet again as CSV with its header row"})
	}
	for _, w := range result.Warnings {
		p.Warning("%s\n", w)
	}

	report, err := cfg.Engine().Process(table.Rows())
	if err != nil {
		return nil, reportError(p, "Aggregation failed", err)
	}

	slog.Debug("Dataset aggregated",
		"rows", result.RowCount,
		"contributors", report.Global.TotalContributors,
		"categories", report.Global.TotalCategories)
	return report, nil
}

func reportError(p *printer.Printer, title string, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return p.Error(title, appErr.ErrBuilder.Msg, appErr.Messages, nil)
	}
	return p.Error(title, err.Error(), nil, nil)
}
