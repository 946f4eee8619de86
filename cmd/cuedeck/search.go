package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cuedeck/cuedeck-agent/internal/config"
	"github.com/cuedeck/cuedeck-agent/internal/freesound"
	"github.com/cuedeck/cuedeck-agent/internal/logging"
	"github.com/cuedeck/cuedeck-agent/internal/timeline"
)

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search Freesound for effects with a playable preview",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			client := freesound.NewClient(cfg.FreesoundBaseURL(), cfg.FreesoundAPIKey(), logging.NewLogger(cfg.LogLevel()))
			results, err := client.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(out, "ID\tNAME\tLENGTH\tBY")
			for _, r := range results {
				fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", r.ID, r.Name, timeline.FormatDuration(int(r.Duration)), r.Username)
			}
			return out.Flush()
		},
	}
}
