package commands

import (
	"github.com/spf13/cobra"
)

func newConfigCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Prints defaults merged with --config and LEADERBOARD_* overrides. The share secret is redacted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd)
			cfg, err := loadConfig(p, opts)
			if err != nil {
				return err
			}

			out, err := cfg.Marshal()
			if err != nil {
				return p.Error("Cannot render configuration", err.Error(), nil, nil)
			}
			p.Info("%s", out)
			return nil
		},
	}
}
