package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benjaminschreck/odtstencil/pkg/stencil"
)

const version = "0.2.0"

var rootCmd = &cobra.Command{
	Use:   "stencil",
	Short: "Merge JSON data into ODT templates",
	Long: `stencil merges JSON payloads into OpenDocument text templates.

Templates use user fields for values, text:condition attributes for
conditional sections and text, repeating table rows and sections for
arrays, and linked sections for reusable text blocks.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configPath   string
	logLevel     string
	textMode     string
	textBlockURL string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error, off)")
	rootCmd.PersistentFlags().StringVar(&textMode, "mode", "", "Text block mode (file, server, objectstore)")
	rootCmd.PersistentFlags().StringVar(&textBlockURL, "url", "", "Text block server URL for server mode")
}

// exitCodeError carries a process exit status through cobra.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func exitError(code int, err error) error {
	return &exitCodeError{code: code, err: err}
}

// loadConfig layers the config file, STENCIL_* variables and flags.
func loadConfig() (*stencil.Config, error) {
	cfg := stencil.DefaultConfig()
	if configPath != "" {
		fileCfg, err := stencil.LoadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	cfg.ApplyEnvironment()

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if textMode != "" {
		cfg.TextBlocks.Mode = stencil.TextBlockMode(textMode)
	}
	if textBlockURL != "" {
		cfg.TextBlocks.ServerURL = textBlockURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newEngine() (*stencil.Engine, *stencil.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := stencil.NewLogger(os.Stderr, stencil.ParseLogLevel(cfg.LogLevel))
	return stencil.New(stencil.WithConfig(cfg), stencil.WithLogger(logger)), logger, nil
}

func readData(path string) (stencil.TemplateData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()
	data, err := stencil.ParseData(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}

// exitCode maps a command error to the process exit status: 0 on success,
// the carried code for an exitCodeError, 1 otherwise.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	return 1
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}
