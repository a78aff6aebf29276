package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/goodtune/sitebudget/internal/usage"
	"github.com/spf13/cobra"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export usage data as JSON",
	Long:  `Write every tracked website with its limit, today's usage and last reset date as a JSON array.`,
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "-", "Output file (- for stdout)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadCommandConfig()
	if err != nil {
		return err
	}
	tracker, store, err := openTracker(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var out io.Writer = os.Stdout
	if exportOutput != "-" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(usage.Export(tracker.ListSites()))
}
