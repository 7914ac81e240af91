package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/pgstream/pkg/compression"
	"github.com/ajitpratap0/pgstream/pkg/config"
	"github.com/ajitpratap0/pgstream/pkg/streamerrors"
	"github.com/ajitpratap0/pgstream/pkg/testutil"
)

const exportYAML = `
name: weather
columns: [city, temp_lo]
output:
  path: weather.jsonl
assignments:
  - connection:
      hosts: [db1, db2]
    relations:
      - schema: public
        table: weather
      - query: SELECT city, temp_lo FROM archive
  - connection:
      conn_string: postgres://reader@db3/weather
    relations:
      - table: weather
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	path := env.CreateTempFile("export.yaml", []byte(exportYAML))

	out, err := execute(t, "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "weather: 2 assignment(s), 3 relation(s), 2 column(s)")
}

func TestValidateCommandRejectsBadConfig(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	path := env.CreateTempFile("export.yaml", []byte("name: broken\ncolumns: [a]\n"))

	_, err := execute(t, "validate", "--config", path)
	require.Error(t, err)
	assert.True(t, streamerrors.IsType(err, streamerrors.ErrorTypeValidation))

	_, err = execute(t, "validate")
	require.Error(t, err)
	assert.True(t, streamerrors.IsType(err, streamerrors.ErrorTypeConfig))
}

func TestConfigFromEnvironment(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	path := env.CreateTempFile("export.yaml", []byte(exportYAML))
	t.Setenv("PGSTREAM_CONFIG", path)

	out, err := execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "weather:")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "pgstream v"+version)
}

func TestApplyOverrides(t *testing.T) {
	v := viper.New()
	root := buildRootCommand(v)
	exportCmd, _, err := root.Find([]string{"export"})
	require.NoError(t, err)
	require.NoError(t, exportCmd.ParseFlags([]string{
		"--output", "out.jsonl.gz",
		"--compression", "gzip",
		"--workers", "3",
		"--metrics-addr", "localhost:9999",
		"--timeout", "90s",
	}))
	t.Setenv("PGSTREAM_FORMAT", "array")

	env := testutil.NewTestEnvironment(t)
	path := env.CreateTempFile("export.yaml", []byte(exportYAML))
	require.NoError(t, root.PersistentFlags().Set("config", path))

	cfg, err := loadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "out.jsonl.gz", cfg.Output.Path)
	assert.Equal(t, "gzip", cfg.Output.Compression)
	assert.Equal(t, "array", cfg.Output.Format)
	assert.Equal(t, 3, cfg.Performance.Workers)
	assert.True(t, cfg.Observability.EnableMetrics)
	assert.Equal(t, "localhost:9999", cfg.Observability.MetricsAddr)
	assert.Equal(t, 90*time.Second, cfg.Timeouts.Export)
}

func TestOpenOutputCompressed(t *testing.T) {
	env := testutil.NewTestEnvironment(t)

	for _, alg := range []compression.Algorithm{compression.None, compression.Gzip, compression.Zstd, compression.LZ4, compression.S2} {
		t.Run(string(alg), func(t *testing.T) {
			path := filepath.Join(env.TempDir(), "out"+alg.Extension())
			w, err := openOutput(config.OutputConfig{Path: path, Compression: string(alg)})
			require.NoError(t, err)
			_, err = w.Write([]byte(`{"city":"Hayward"}` + "\n"))
			require.NoError(t, err)
			require.NoError(t, w.Close())

			f, err := os.Open(path)
			require.NoError(t, err)
			defer f.Close()
			r, err := compression.NewReader(f, alg)
			require.NoError(t, err)
			data, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())
			assert.Equal(t, `{"city":"Hayward"}`+"\n", string(data))
		})
	}

	_, err := openOutput(config.OutputConfig{Path: "-", Compression: "bzip2"})
	require.Error(t, err)
}
