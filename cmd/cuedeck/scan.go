package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cuedeck/cuedeck-agent/internal/catalog"
	"github.com/cuedeck/cuedeck-agent/internal/config"
	"github.com/cuedeck/cuedeck-agent/internal/logging"
)

func newScanCmd() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "scan <folder>",
		Short: "List the audio files CueDeck would find in a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if !cmd.Flags().Changed("depth") {
				depth = cfg.ScanMaxDepth()
			}

			ctx := cmd.Context()
			root, err := catalog.PathPicker{Path: args[0]}.PickDirectory(ctx)
			if err != nil {
				return err
			}
			perm, err := root.QueryPermission(ctx)
			if err != nil {
				return err
			}
			if perm != catalog.PermissionGranted {
				return fmt.Errorf("%s: %w", root.Path(), catalog.ErrPermissionDenied)
			}

			refs, err := catalog.NewScanner(depth, logging.NewLogger(cfg.LogLevel())).Scan(ctx, root)
			if err != nil {
				return err
			}

			out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, ref := range refs {
				fmt.Fprintf(out, "%s\t%s\n", ref.Path, humanize.Bytes(uint64(max(ref.Size, 0))))
			}
			if err := out.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d files, %s\n", len(refs), humanize.Bytes(catalog.TotalSize(refs)))
			return nil
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "maximum directory depth below the folder (0 = unlimited)")
	return cmd
}
