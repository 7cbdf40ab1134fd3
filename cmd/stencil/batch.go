package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var batchCmd = &cobra.Command{
	Use:   "batch -t TEMPLATE --out-dir DIR DATA.json...",
	Short: "Merge many JSON payloads into one template",
	Long: `Merge each JSON payload into its own copy of the template.

Payloads are merged in parallel. The output for data/kunde-17.json is
written to DIR/kunde-17.odt. The first failing merge cancels the
remaining ones that have not started yet.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

var (
	batchTemplate string
	batchOutDir   string
	batchJobs     int
)

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVarP(&batchTemplate, "template", "t", "", "Template ODT file")
	batchCmd.Flags().StringVar(&batchOutDir, "out-dir", ".", "Directory for the merged documents")
	batchCmd.Flags().IntVarP(&batchJobs, "jobs", "j", runtime.NumCPU(), "Number of parallel merges")
	_ = batchCmd.MarkFlagRequired("template")
}

func runBatch(cmd *cobra.Command, args []string) error {
	engine, logger, err := newEngine()
	if err != nil {
		return exitError(2, err)
	}
	if err := os.MkdirAll(batchOutDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(1, batchJobs))
	for _, dataPath := range args {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			data, err := readData(dataPath)
			if err != nil {
				return err
			}
			if err := mergeOne(engine, logger, batchTemplate, data, batchOutputPath(dataPath)); err != nil {
				return fmt.Errorf("%s: %w", dataPath, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func batchOutputPath(dataPath string) string {
	base := filepath.Base(dataPath)
	return filepath.Join(batchOutDir, strings.TrimSuffix(base, filepath.Ext(base))+".odt")
}
