package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/benjaminschreck/odtstencil/pkg/stencil"
)

// resetFlags clears the flag variables shared by all commands now and after
// the test.
func resetFlags(t *testing.T) {
	t.Helper()
	reset := func() {
		configPath, logLevel, textMode, textBlockURL = "", "", "", ""
		mergeTemplate, mergeData, mergeOutput = "", "", ""
		batchTemplate, batchOutDir, batchJobs = "", ".", 1
		validateTemplate, validateSample, validateMaxIssues = "", "", 0
	}
	reset()
	t.Cleanup(reset)
}

func TestLoadConfigPrecedence(t *testing.T) {
	resetFlags(t)
	dir := t.TempDir()
	configPath = filepath.Join(dir, "stencil.yaml")
	yml := "log_level: debug\nmax_include_depth: 4\ntext_blocks:\n  mode: server\n  server_url: http://file.example/blocks\n"
	if err := os.WriteFile(configPath, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STENCIL_MAX_INCLUDE_DEPTH", "6")
	t.Setenv("STENCIL_TEXTBLOCK_URL", "http://env.example/blocks")
	textBlockURL = "http://flag.example/blocks"

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want file value", cfg.LogLevel)
	}
	if cfg.MaxIncludeDepth != 6 {
		t.Errorf("MaxIncludeDepth = %d, want environment value", cfg.MaxIncludeDepth)
	}
	if cfg.TextBlocks.Mode != stencil.TextBlockServer || cfg.TextBlocks.ServerURL != "http://flag.example/blocks" {
		t.Errorf("TextBlocks = %+v, want flag URL", cfg.TextBlocks)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	resetFlags(t)
	textMode = "ftp"
	if _, err := loadConfig(); err == nil {
		t.Error("loadConfig() expected error for unknown mode")
	}
}

func TestBatchOutputPath(t *testing.T) {
	old := batchOutDir
	t.Cleanup(func() { batchOutDir = old })
	batchOutDir = "out"

	tests := map[string]string{
		"data/kunde-17.json": filepath.Join("out", "kunde-17.odt"),
		"payload":            filepath.Join("out", "payload.odt"),
		"a.b.json":           filepath.Join("out", "a.b.odt"),
	}
	for in, want := range tests {
		if got := batchOutputPath(in); got != want {
			t.Errorf("batchOutputPath(%q) = %q, want %q", in, got, want)
		}
	}
}
