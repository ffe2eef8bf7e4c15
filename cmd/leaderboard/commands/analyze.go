package commands

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/export"
)

func newAnalyzeCmd(opts *globalOptions) *cobra.Command {
	var (
		format string
		top    int
	)

	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Print the leaderboard for an annotation CSV",
		Long: `Reads an annotation CSV (use - for stdin) and prints the ranked leaderboard.

Formats:
  table     fixed-width leaderboard (default)
  json      anonymized aggregate, the same shape a share token carries
  csv       sectioned aggregate report
  markdown  aggregate report as Markdown tables`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd)
			cfg, err := loadConfig(p, opts)
			if err != nil {
				return err
			}

			report, err := loadReport(cmd, p, cfg, args[0])
			if err != nil {
				return err
			}

			now := time.Now()
			switch strings.ToLower(format) {
			case "table", "":
				err = export.WriteTable(p.Out(), report, top)
			case "json":
				payload := cfg.Codec().Project(report)
				if top > 0 && top < len(payload.Contributors) {
					payload.Contributors = payload.Contributors[:top]
				}
				enc := json.NewEncoder(p.Out())
				enc.SetIndent("", "  ")
				err = enc.Encode(payload)
			default:
				f, perr := export.ParseFormat(format)
				if perr != nil {
					return p.Error("Unknown format", perr.Error(), nil,
						[]string{"Use one of table, json, csv or markdown"})
				}
				err = export.Write(p.Out(), f, report, now)
			}
			if err != nil {
				return p.Error("Failed to write output", err.Error(), nil, nil)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table, json, csv or markdown")
	cmd.Flags().IntVarP(&top, "top", "n", 0, "show only the first N contributors (0 for all)")
	return cmd
}
