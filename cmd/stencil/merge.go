package main

import (
	"bytes"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/benjaminschreck/odtstencil/pkg/stencil"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge one JSON payload into a template",
	Long: `Merge a JSON payload into an ODT template and write the result.

The output file is replaced atomically, so a failed merge never leaves a
partial document behind. Warnings such as unresolved text blocks are logged.`,
	RunE: runMerge,
}

var (
	mergeTemplate string
	mergeData     string
	mergeOutput   string
)

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringVarP(&mergeTemplate, "template", "t", "", "Template ODT file")
	mergeCmd.Flags().StringVarP(&mergeData, "data", "d", "", "JSON data file")
	mergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "", "Output ODT file")
	_ = mergeCmd.MarkFlagRequired("template")
	_ = mergeCmd.MarkFlagRequired("data")
	_ = mergeCmd.MarkFlagRequired("output")
}

func runMerge(cmd *cobra.Command, args []string) error {
	engine, logger, err := newEngine()
	if err != nil {
		return exitError(2, err)
	}
	data, err := readData(mergeData)
	if err != nil {
		return exitError(2, err)
	}
	return mergeOne(engine, logger, mergeTemplate, data, mergeOutput)
}

// mergeOne merges data into a freshly loaded template and writes the archive
// to out.
func mergeOne(engine *stencil.Engine, logger *stencil.Logger, template string, data stencil.TemplateData, out string) error {
	doc, err := stencil.Open(template)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	res, err := engine.MergeTo(doc, data, &buf)
	if err != nil {
		return err
	}
	size := buf.Len()
	if err := atomic.WriteFile(out, &buf); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	log := logger.WithFields(stencil.Fields{
		"output":   out,
		"size":     humanize.Bytes(uint64(size)),
		"includes": res.Stats.IncludesExpanded,
		"regions":  res.Stats.RegionsExpanded,
		"fields":   res.Stats.FieldsReplaced,
		"elapsed":  res.Stats.Duration,
	})
	for _, w := range res.Warnings {
		log.Warn("%s", w)
	}
	log.Info("merged %s", template)
	return nil
}
