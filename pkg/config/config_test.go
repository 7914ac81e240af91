package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/pgstream/pkg/streamerrors"
)

func validConfig() *ExportConfig {
	cfg := NewExportConfig("test")
	cfg.Columns = []string{"a", "b"}
	cfg.Assignments = []AssignmentConfig{
		{
			Connection: ConnectionConfig{Hosts: []string{"db1", "/var/run/postgresql"}, Ports: []uint16{5433}},
			Relations: []RelationConfig{
				{Schema: "public", Table: "t"},
				{Query: "SELECT 1 AS a, 2 AS b"},
			},
		},
		{
			Connection: ConnectionConfig{ConnString: "postgres://u@db2/test"},
			Relations:  []RelationConfig{{Table: "t"}},
		},
	}
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := NewExportConfig("x")
	assert.Positive(t, cfg.Performance.Workers)
	assert.Equal(t, 16, cfg.Performance.ChunkBuffer)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Connection)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.Equal(t, "json", cfg.Observability.LogEncoding)
	assert.Equal(t, "-", cfg.Output.Path)
	assert.Equal(t, "jsonl", cfg.Output.Format)
	assert.Equal(t, "none", cfg.Output.Compression)
	assert.Empty(t, cfg.Observability.MetricsAddr)

	cfg.Observability.EnableMetrics = true
	cfg.Observability.EnableTracing = true
	cfg.ApplyDefaults()
	assert.Equal(t, "localhost:9187", cfg.Observability.MetricsAddr)
	assert.InDelta(t, 1.0, cfg.Observability.TracingSampleRate, 0)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &ExportConfig{Name: "x"}
	cfg.Performance.Workers = 3
	cfg.Output.Format = "array"
	cfg.ApplyDefaults()
	assert.Equal(t, 3, cfg.Performance.Workers)
	assert.Equal(t, "array", cfg.Output.Format)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*ExportConfig)
		field  string
	}{
		{"missing name", func(c *ExportConfig) { c.Name = "" }, "Name"},
		{"no columns", func(c *ExportConfig) { c.Columns = nil }, "Columns"},
		{"empty column", func(c *ExportConfig) { c.Columns = []string{"a", ""} }, "Columns[1]"},
		{"no assignments", func(c *ExportConfig) { c.Assignments = nil }, "Assignments"},
		{"no relations", func(c *ExportConfig) { c.Assignments[0].Relations = nil }, "Relations"},
		{"no host or conn string", func(c *ExportConfig) { c.Assignments[1].Connection.ConnString = "" }, "ConnString"},
		{"table and query", func(c *ExportConfig) { c.Assignments[0].Relations[0].Query = "SELECT 1" }, "Table"},
		{"neither table nor query", func(c *ExportConfig) { c.Assignments[0].Relations[1].Query = "" }, "Table"},
		{"negative workers", func(c *ExportConfig) { c.Performance.Workers = -1 }, "Workers"},
		{"bad log level", func(c *ExportConfig) { c.Observability.LogLevel = "loud" }, "LogLevel"},
		{"bad sample rate", func(c *ExportConfig) { c.Observability.TracingSampleRate = 2 }, "TracingSampleRate"},
		{"bad format", func(c *ExportConfig) { c.Output.Format = "csv" }, "Format"},
		{"bad compression", func(c *ExportConfig) { c.Output.Compression = "bzip2" }, "Compression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, streamerrors.IsType(err, streamerrors.ErrorTypeValidation))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.yaml")
	cfg := validConfig()
	cfg.Timeouts.Export = 90 * time.Minute

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := LoadExport(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadExportOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: overrides
columns: [a]
assignments:
  - connection:
      hosts: [db1]
    relations:
      - table: t
`), 0o600))

	var order []string
	cfg, err := LoadExport(path,
		func(c *ExportConfig) { order = append(order, "first"); c.Performance.Workers = 3 },
		func(c *ExportConfig) {
			order = append(order, "second")
			// defaults are not applied yet
			assert.Empty(t, c.Output.Format)
			c.Output.Format = "array"
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, 3, cfg.Performance.Workers)
	assert.Equal(t, "array", cfg.Output.Format)
	assert.Equal(t, "none", cfg.Output.Compression)

	// overrides run before validation
	_, err = LoadExport(path, func(c *ExportConfig) { c.Output.Format = "xml" })
	require.Error(t, err)
	assert.True(t, streamerrors.IsType(err, streamerrors.ErrorTypeValidation))
}

func TestLoadSubstitutesEnvironment(t *testing.T) {
	t.Setenv("PGSTREAM_TEST_HOST", "db.internal")
	t.Setenv("PGSTREAM_TEST_PASSWORD", "p@ss")

	path := filepath.Join(t.TempDir(), "export.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: env
columns: [a]
timeouts:
  connection: 3s
assignments:
  - connection:
      hosts: [${PGSTREAM_TEST_HOST}]
      password: "${PGSTREAM_TEST_PASSWORD}"
      connect_timeout: 250ms
    relations:
      - query: SELECT 1 AS a
`), 0o600))

	cfg, err := LoadExport(path)
	require.NoError(t, err)
	conn := cfg.Assignments[0].Connection
	assert.Equal(t, []string{"db.internal"}, conn.Hosts)
	assert.Equal(t, "p@ss", conn.Password)
	assert.Equal(t, 250*time.Millisecond, conn.ConnectTimeout)
	assert.Equal(t, 3*time.Second, cfg.Timeouts.Connection)
}

func TestLoadErrors(t *testing.T) {
	_, err := LoadExport(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, streamerrors.IsType(err, streamerrors.ErrorTypeConfig))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: [unterminated"), 0o600))
	_, err = LoadExport(path)
	require.Error(t, err)
	assert.True(t, streamerrors.IsType(err, streamerrors.ErrorTypeConfig))

	require.NoError(t, os.WriteFile(path, []byte("name: x\n"), 0o600))
	_, err = LoadExport(path)
	require.Error(t, err)
	assert.True(t, streamerrors.IsType(err, streamerrors.ErrorTypeValidation))
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("A_VAR", "1")
	assert.Equal(t, "x=1 y= z=${open", substituteEnvVars("x=${A_VAR} y=${PGSTREAM_UNSET_VAR} z=${open"))
	assert.Equal(t, "plain", substituteEnvVars("plain"))
}
