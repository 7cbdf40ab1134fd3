package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benjaminschreck/odtstencil/pkg/stencil"
)

var validateCmd = &cobra.Command{
	Use:   "validate TEMPLATE",
	Short: "Check a template and print its fields, conditions and includes",
	Long: `Validate a template without merging it.

The report lists every field, condition and text block reference, any
syntax problems, and a JSON schema of the data the template expects. The
exit status is 1 when the template has errors.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

var (
	validateTemplate  string
	validateSample    string
	validateMaxIssues int
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateTemplate, "template", "t", "", "Template ODT file (instead of the argument)")
	validateCmd.Flags().StringVar(&validateSample, "sample", "", "Sample JSON data used to report repeating regions")
	validateCmd.Flags().IntVar(&validateMaxIssues, "max-issues", 0, "Maximum number of reported issues (0 = all)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	template := validateTemplate
	if len(args) == 1 {
		template = args[0]
	}
	if template == "" {
		return exitError(2, errors.New("no template given"))
	}

	doc, err := stencil.Open(template)
	if err != nil {
		return exitError(2, err)
	}

	opts := stencil.ValidateOptions{MaxIssues: validateMaxIssues}
	if validateSample != "" {
		if opts.SampleData, err = readData(validateSample); err != nil {
			return exitError(2, err)
		}
	}

	res := stencil.ValidateTemplate(doc, opts)
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if !res.IsValid {
		return exitError(1, errors.New("template has errors"))
	}
	return nil
}
