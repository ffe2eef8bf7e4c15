package commands

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/encoding"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/export"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/printer"
)

func newDecodeCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "decode TOKEN|URL",
		Short: "Show the leaderboard carried by a share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd)
			cfg, err := loadConfig(p, opts)
			if err != nil {
				return err
			}

			payload, err := cfg.Codec().Decode(args[0])
			if err != nil {
				return decodeError(p, err)
			}

			if asJSON {
				enc := json.NewEncoder(p.Out())
				enc.SetIndent("", "  ")
				return enc.Encode(payload)
			}
			return export.WritePayloadTable(p.Out(), payload, time.Now())
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the decoded payload as JSON")
	return cmd
}

func decodeError(p *printer.Printer, err error) error {
	switch {
	case errors.Is(err, encoding.ErrExpired):
		return p.Error("Share link expired", err.Error(), nil,
			[]string{"Ask for a new link"})
	case errors.Is(err, encoding.ErrUnsupportedVersion):
		return p.Error("Share link version not supported", err.Error(), nil,
			[]string{"Upgrade this tool to read newer links"})
	case errors.Is(err, encoding.ErrEmptyToken):
		return p.Error("Share link is empty", "Nothing follows the '#' marker.", nil, nil)
	case errors.Is(err, encoding.ErrCorruptToken), errors.Is(err, encoding.ErrMalformedPayload):
		return p.Error("Share link is damaged", err.Error(), nil,
			[]string{"Copy the complete link, including everything after '#'"})
	default:
		return p.Error("Cannot decode share link", err.Error(), nil, nil)
	}
}
