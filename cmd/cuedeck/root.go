package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cuedeck/cuedeck-agent/internal/config"
)

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "cuedeck",
		Short:         "CueDeck is a live-production cueing agent.",
		Long:          "CueDeck runs the show clock, the primary track, the effect board and the local audio library, and serves them to the browser control surface.",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile == "" {
				return nil
			}
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), serveOptions{})
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment variables from this file")

	root.AddCommand(newServeCmd(), newScanCmd(), newSearchCmd())
	return root
}
