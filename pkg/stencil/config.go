package stencil

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TextBlockMode selects how include references are turned into source locations.
type TextBlockMode string

const (
	// TextBlockFile resolves hrefs against the template's directory and its ancestors.
	TextBlockFile TextBlockMode = "file"
	// TextBlockServer builds URLs from ServerURL and the include's block name.
	TextBlockServer TextBlockMode = "server"
	// TextBlockObjectStore fetches s3://Bucket/Prefix<name>.odt objects.
	TextBlockObjectStore TextBlockMode = "objectstore"
)

// TextBlockConfig controls the Text Block Expander.
type TextBlockConfig struct {
	Mode TextBlockMode `yaml:"mode"`
	// ServerURL is the base endpoint for server mode.
	ServerURL string `yaml:"server_url"`
	// Bucket and Prefix locate blocks in objectstore mode.
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	// HTTPTimeout bounds a single block download.
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// ObjectStoreConfig holds S3-compatible credentials for objectstore mode and
// for s3:// hrefs.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Config contains all configuration options for the Stencil engine
type Config struct {
	// LogLevel controls the verbosity of logging (debug, info, warn, error, off)
	LogLevel string `yaml:"log_level"`
	// MaxIncludeDepth limits how deeply text blocks may include other text blocks
	MaxIncludeDepth int `yaml:"max_include_depth"`
	// TextBlocks selects and parameterizes include resolution
	TextBlocks TextBlockConfig `yaml:"text_blocks"`
	// ObjectStore configures access to S3-compatible storage
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		LogLevel:        "info",
		MaxIncludeDepth: 10,
		TextBlocks: TextBlockConfig{
			Mode:        TextBlockFile,
			HTTPTimeout: 30 * time.Second,
		},
		ObjectStore: ObjectStoreConfig{
			UseSSL: true,
		},
	}
}

// ConfigFromEnvironment creates a configuration from environment variables
func ConfigFromEnvironment() *Config {
	config := DefaultConfig()
	config.ApplyEnvironment()
	return config
}

// ApplyEnvironment overrides fields from STENCIL_* environment variables.
func (c *Config) ApplyEnvironment() {
	// STENCIL_LOG_LEVEL
	if val := os.Getenv("STENCIL_LOG_LEVEL"); val != "" {
		c.LogLevel = strings.ToLower(val)
	}

	// STENCIL_MAX_INCLUDE_DEPTH
	if val := os.Getenv("STENCIL_MAX_INCLUDE_DEPTH"); val != "" {
		if depth, err := strconv.Atoi(val); err == nil {
			c.MaxIncludeDepth = depth
		}
	}

	if val := os.Getenv("STENCIL_TEXTBLOCK_MODE"); val != "" {
		c.TextBlocks.Mode = TextBlockMode(strings.ToLower(val))
	}
	if val := os.Getenv("STENCIL_TEXTBLOCK_URL"); val != "" {
		c.TextBlocks.ServerURL = val
	}
	if val := os.Getenv("STENCIL_TEXTBLOCK_BUCKET"); val != "" {
		c.TextBlocks.Bucket = val
	}
	if val := os.Getenv("STENCIL_TEXTBLOCK_PREFIX"); val != "" {
		c.TextBlocks.Prefix = val
	}
	if val := os.Getenv("STENCIL_HTTP_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.TextBlocks.HTTPTimeout = d
		}
	}

	if val := os.Getenv("STENCIL_S3_ENDPOINT"); val != "" {
		c.ObjectStore.Endpoint = val
	}
	if val := os.Getenv("STENCIL_S3_ACCESS_KEY"); val != "" {
		c.ObjectStore.AccessKey = val
	}
	if val := os.Getenv("STENCIL_S3_SECRET_KEY"); val != "" {
		c.ObjectStore.SecretKey = val
	}
	if val := os.Getenv("STENCIL_S3_REGION"); val != "" {
		c.ObjectStore.Region = val
	}
	if val := os.Getenv("STENCIL_S3_USE_SSL"); val != "" {
		c.ObjectStore.UseSSL = parseBool(val)
	}
}

// LoadConfigFile reads a YAML configuration file on top of the defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return config, nil
}

// NewConfigWithDefaults creates a new configuration with defaults applied to unset fields
func NewConfigWithDefaults(overrides *Config) *Config {
	defaults := DefaultConfig()

	if overrides == nil {
		return defaults
	}

	config := *overrides

	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}
	if config.MaxIncludeDepth == 0 {
		config.MaxIncludeDepth = defaults.MaxIncludeDepth
	}
	if config.TextBlocks.Mode == "" {
		config.TextBlocks.Mode = defaults.TextBlocks.Mode
	}
	if config.TextBlocks.HTTPTimeout == 0 {
		config.TextBlocks.HTTPTimeout = defaults.TextBlocks.HTTPTimeout
	}

	return &config
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"off":   true,
	}

	if !validLogLevels[c.LogLevel] {
		return errors.New("invalid log level: " + c.LogLevel)
	}

	if c.MaxIncludeDepth <= 0 {
		return errors.New("max include depth must be positive")
	}

	if c.TextBlocks.HTTPTimeout < 0 {
		return errors.New("http timeout cannot be negative")
	}

	switch c.TextBlocks.Mode {
	case TextBlockFile:
	case TextBlockServer:
		if strings.TrimSpace(c.TextBlocks.ServerURL) == "" {
			return errors.New("server text block mode requires a server url")
		}
	case TextBlockObjectStore:
		if c.TextBlocks.Bucket == "" {
			return errors.New("objectstore text block mode requires a bucket")
		}
		if c.ObjectStore.Endpoint == "" {
			return errors.New("objectstore text block mode requires an endpoint")
		}
	default:
		return errors.New("invalid text block mode: " + string(c.TextBlocks.Mode))
	}

	return nil
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
