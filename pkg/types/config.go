package types

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Parser modes for the search pipeline.
const (
	ParserModeShared = "shared"
	ParserModePooled = "pooled"
)

// Config represents the configuration for the annols server
type Config struct {
	WorkspaceRoot string         `yaml:"workspace_root" json:"workspace_root"`
	Logging       LoggingConfig  `yaml:"logging" json:"logging"`
	Search        SearchConfig   `yaml:"search" json:"search"`
	Protocol      ProtocolConfig `yaml:"protocol" json:"protocol"`
	Upstream      UpstreamConfig `yaml:"upstream" json:"upstream"`
	Metrics       MetricsConfig  `yaml:"metrics" json:"metrics"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // text | json
}

// SearchConfig tunes the annotation search pipeline.
type SearchConfig struct {
	Workers      int      `yaml:"workers" json:"workers"`
	Extensions   []string `yaml:"extensions" json:"extensions"`
	Exclude      []string `yaml:"exclude" json:"exclude"`
	MaxFileBytes int64    `yaml:"max_file_bytes" json:"max_file_bytes"`
	ParserMode   string   `yaml:"parser_mode" json:"parser_mode"`
}

// ProtocolConfig bounds every protocol call in time.
type ProtocolConfig struct {
	RequestTimeoutSec    int `yaml:"request_timeout_sec" json:"request_timeout_sec"`
	InitializeTimeoutSec int `yaml:"initialize_timeout_sec" json:"initialize_timeout_sec"`
	ShutdownTimeoutSec   int `yaml:"shutdown_timeout_sec" json:"shutdown_timeout_sec"`
}

// UpstreamConfig names an external language server answering workspace/symbol.
// An empty command means symbols are served from the local index.
type UpstreamConfig struct {
	Command string   `yaml:"command" json:"command"`
	Args    []string `yaml:"args" json:"args"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// DefaultExcludes are glob patterns skipped by the workspace walker.
var DefaultExcludes = []string{
	"**/.git",
	"**/.svn",
	"**/.hg",
	"**/.idea",
	"**/.gradle",
	"**/node_modules",
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.WorkspaceRoot == "" {
		c.WorkspaceRoot = "."
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Search.Workers <= 0 {
		c.Search.Workers = runtime.NumCPU()
	}
	if len(c.Search.Extensions) == 0 {
		c.Search.Extensions = []string{".java"}
	}
	if c.Search.Exclude == nil {
		c.Search.Exclude = append([]string(nil), DefaultExcludes...)
	}
	if c.Search.MaxFileBytes <= 0 {
		c.Search.MaxFileBytes = 4 << 20
	}
	if c.Search.ParserMode == "" {
		c.Search.ParserMode = ParserModePooled
	}
	if c.Protocol.RequestTimeoutSec <= 0 {
		c.Protocol.RequestTimeoutSec = 60
	}
	if c.Protocol.InitializeTimeoutSec <= 0 {
		c.Protocol.InitializeTimeoutSec = 10
	}
	if c.Protocol.ShutdownTimeoutSec <= 0 {
		c.Protocol.ShutdownTimeoutSec = 5
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	switch c.Search.ParserMode {
	case ParserModeShared, ParserModePooled:
	default:
		return fmt.Errorf("search.parser_mode must be %q or %q, got %q", ParserModeShared, ParserModePooled, c.Search.ParserMode)
	}
	for _, ext := range c.Search.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("search.extensions entries must start with a dot, got %q", ext)
		}
	}
	return nil
}

// RequestTimeout returns the per-request deadline.
func (c ProtocolConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// InitializeTimeout returns the deadline for the initialize handshake.
func (c ProtocolConfig) InitializeTimeout() time.Duration {
	return time.Duration(c.InitializeTimeoutSec) * time.Second
}

// ShutdownTimeout returns how long shutdown waits for in-flight requests.
func (c ProtocolConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}
