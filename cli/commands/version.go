package commands

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/queryable/cli/internal/update"
	"github.com/satishbabariya/queryable/cli/internal/version"
)

func newVersionCommand(a *app) *cobra.Command {
	var (
		check  bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			if asJSON {
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return err
				}
				a.ui.Plain("%s", data)
			} else {
				a.ui.Plain("%s", info.FullString())
			}
			if !check {
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			res, err := update.Check(ctx, nil, update.ReleasesURL, info.Version)
			if err != nil {
				return err
			}
			if res.Available {
				a.ui.Warning("A new version is available: %s (current %s)", res.Latest, res.Current)
				a.ui.Plain("Download: %s", update.DownloadURL(res.Latest))
				return nil
			}
			a.ui.Success("queryable is up to date")
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "check for a newer release")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print version information as JSON")
	return cmd
}
