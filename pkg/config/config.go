package config

import (
	"errors"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ajitpratap0/pgstream/pkg/streamerrors"
)

// ExportConfig is the complete description of one export.
type ExportConfig struct {
	// Name identifies the export in logs and metrics
	Name string `yaml:"name" json:"name" validate:"required"`

	// Performance settings control parallelism and buffering
	Performance PerformanceConfig `yaml:"performance" json:"performance"`

	// Timeouts define various timeout durations
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`

	// Observability settings for monitoring and debugging
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`

	// Output describes where rows are written
	Output OutputConfig `yaml:"output" json:"output"`

	// Columns lists the columns exported from every relation
	Columns []string `yaml:"columns" json:"columns" validate:"required,min=1,dive,required"`

	// Assignments lists the units of work, one connection each
	Assignments []AssignmentConfig `yaml:"assignments" json:"assignments" validate:"required,min=1,dive"`
}

// PerformanceConfig contains all performance-related settings.
type PerformanceConfig struct {
	// Workers is the number of assignments exported concurrently
	Workers int `yaml:"workers" json:"workers" validate:"gte=0"`
	// ChunkBuffer bounds the COPY payloads buffered per connection
	ChunkBuffer int `yaml:"chunk_buffer" json:"chunk_buffer" validate:"gte=0"`
}

// TimeoutConfig contains all timeout-related settings.
type TimeoutConfig struct {
	// Connection timeout for establishing connections
	Connection time.Duration `yaml:"connection" json:"connection" validate:"gte=0"`
	// Export bounds the whole export; zero means no limit
	Export time.Duration `yaml:"export" json:"export" validate:"gte=0"`
}

// ObservabilityConfig contains monitoring and observability settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level" validate:"omitempty,oneof=debug info warn error"`
	// LogEncoding selects json or console output
	LogEncoding string `yaml:"log_encoding" json:"log_encoding" validate:"omitempty,oneof=json console"`
	// EnableMetrics serves Prometheus metrics on MetricsAddr
	EnableMetrics bool   `yaml:"enable_metrics" json:"enable_metrics"`
	MetricsAddr   string `yaml:"metrics_addr" json:"metrics_addr" validate:"omitempty,hostname_port"`
	// EnableTracing exports spans to stderr
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing"`
	// TracingSampleRate controls trace sampling (0.0-1.0)
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate" validate:"gte=0,lte=1"`
}

// OutputConfig describes the export destination.
type OutputConfig struct {
	// Path of the output file; "-" or empty writes to stdout
	Path string `yaml:"path" json:"path"`
	// Format is jsonl or array
	Format string `yaml:"format" json:"format" validate:"omitempty,oneof=jsonl array"`
	// Compression algorithm (none, gzip, snappy, lz4, zstd, s2, deflate)
	Compression string `yaml:"compression" json:"compression" validate:"omitempty,oneof=none gzip snappy lz4 zstd s2 deflate"`
	// CompressionLevel trades speed for ratio (1-9)
	CompressionLevel int `yaml:"compression_level" json:"compression_level" validate:"gte=0,lte=9"`
}

// AssignmentConfig is one connection and the relations exported over it.
type AssignmentConfig struct {
	Connection ConnectionConfig `yaml:"connection" json:"connection"`
	Relations  []RelationConfig `yaml:"relations" json:"relations" validate:"required,min=1,dive"`
}

// ConnectionConfig describes a database connection either as a libpq
// connection string or field by field. Fields set alongside ConnString
// override the values parsed from it.
type ConnectionConfig struct {
	ConnString     string        `yaml:"conn_string" json:"conn_string" validate:"required_without=Hosts"`
	Hosts          []string      `yaml:"hosts,omitempty" json:"hosts,omitempty" validate:"required_without=ConnString,dive,required"`
	Ports          []uint16      `yaml:"ports,omitempty" json:"ports,omitempty"`
	User           string        `yaml:"user" json:"user"`
	Password       string        `yaml:"password" json:"password"`
	Database       string        `yaml:"database" json:"database"`
	Options        string        `yaml:"options" json:"options"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout" validate:"gte=0"`
}

// RelationConfig names a table (optionally schema-qualified) or a query.
// Exactly one of Table and Query is set.
type RelationConfig struct {
	Schema string `yaml:"schema,omitempty" json:"schema,omitempty" validate:"excluded_with=Query"`
	Table  string `yaml:"table,omitempty" json:"table,omitempty" validate:"required_without=Query,excluded_with=Query"`
	Query  string `yaml:"query,omitempty" json:"query,omitempty" validate:"required_without=Table"`
}

// NewExportConfig creates an ExportConfig with defaults and no assignments.
//
// Example:
//
//	cfg := config.NewExportConfig("weather")
//	cfg.Columns = []string{"city", "temp_lo"}
//	cfg.Performance.Workers = 8
func NewExportConfig(name string) *ExportConfig {
	cfg := &ExportConfig{Name: name}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field with its default.
func (c *ExportConfig) ApplyDefaults() {
	if c.Performance.Workers == 0 {
		c.Performance.Workers = runtime.NumCPU()
	}
	if c.Performance.ChunkBuffer == 0 {
		c.Performance.ChunkBuffer = 16
	}
	if c.Timeouts.Connection == 0 {
		c.Timeouts.Connection = 10 * time.Second
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = "info"
	}
	if c.Observability.LogEncoding == "" {
		c.Observability.LogEncoding = "json"
	}
	if c.Observability.EnableMetrics && c.Observability.MetricsAddr == "" {
		c.Observability.MetricsAddr = "localhost:9187"
	}
	if c.Observability.EnableTracing && c.Observability.TracingSampleRate == 0 {
		c.Observability.TracingSampleRate = 1.0
	}
	if c.Output.Path == "" {
		c.Output.Path = "-"
	}
	if c.Output.Format == "" {
		c.Output.Format = "jsonl"
	}
	if c.Output.Compression == "" {
		c.Output.Compression = "none"
	}
	if c.Output.CompressionLevel == 0 {
		c.Output.CompressionLevel = 5
	}
}

var validate = validator.New()

// Validate validates the configuration for correctness.
func (c *ExportConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return streamerrors.Wrap(err, streamerrors.ErrorTypeValidation, "invalid configuration")
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Namespace()+" ("+fe.Tag()+")")
	}
	return streamerrors.New(streamerrors.ErrorTypeValidation, "invalid configuration: "+strings.Join(fields, ", ")).
		WithDetail("fields", fields)
}
