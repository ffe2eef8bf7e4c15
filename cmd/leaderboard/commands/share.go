package commands

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/encoding"
)

func newShareCmd(opts *globalOptions) *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "share FILE",
		Short: "Create a share link for an annotation CSV",
		Long: `Aggregates the CSV and prints a share link. The token after '#' carries
only anonymized aggregates and is never sent to a server by a browser.`,
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

			codec := cfg.Codec()
			payload := codec.Project(report)
			token, err := codec.EncodePayload(payload)
			if err != nil {
				return reportError(p, "Cannot create share token", err)
			}

			p.Info("%s/share%s\n", strings.TrimRight(baseURL, "/"), token)
			p.Success("%d contributors shared, link expires %s (%s)\n",
				len(payload.Contributors),
				payload.Expires().UTC().Format(time.RFC3339),
				encoding.TimeRemaining(payload, time.Now()))
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "http://127.0.0.1:8080", "dashboard origin to prefix the token with")
	return cmd
}
