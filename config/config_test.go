package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, DefaultDBPath, cfg.Pipeline.DBPath)
	assert.Equal(t, DefaultPipelinesDir, cfg.Pipeline.PipelinesDir)
	assert.Equal(t, DefaultPipelineName, cfg.Pipeline.Name)
	assert.Equal(t, "mev_commit_testnet_dataset", cfg.Pipeline.Dataset())
	assert.Equal(t, 30*time.Second, cfg.Service.Interval())
	assert.Equal(t, "console", cfg.Service.LogFormat)
}

func TestLoadEnvOverrides(t *testing.T) {
	cfg, err := Load("", envMap(map[string]string{
		"DB_PATH":      "\"/tmp/x/store.duckdb\"",
		"PIPELINE_DIR": "/tmp/x/pipelines",
		"LOG_LEVEL":    "debug",
		"HEALTH_ADDR":  "",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/x/store.duckdb", cfg.Pipeline.DBPath)
	assert.Equal(t, "/tmp/x/pipelines", cfg.Pipeline.PipelinesDir)
	assert.Equal(t, "debug", cfg.Service.LogLevel)
	assert.Empty(t, cfg.Service.HealthAddr)
}

func TestLoadEmptyEnvFallsBackToDefault(t *testing.T) {
	cfg, err := Load("", envMap(map[string]string{"DB_PATH": "  "}))
	require.NoError(t, err)
	assert.Equal(t, DefaultDBPath, cfg.Pipeline.DBPath)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
service:
  interval_seconds: 5
pipeline:
  name: custom_pipe
  db_path: from_yaml.duckdb
  column_mapping:
    txIndex: l2_tx_index
source:
  rpc_url: http://localhost:8545
  contracts:
    - name: block_tracker
      address: "0x0000000000000000000000000000000000000001"
      abi: "[]"
      events: [NewL1Block]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path, envMap(map[string]string{"DB_PATH": "from_env.duckdb"}))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Service.Interval())
	assert.Equal(t, "custom_pipe", cfg.Pipeline.Name)
	assert.Equal(t, "from_env.duckdb", cfg.Pipeline.DBPath)
	assert.Equal(t, DefaultPipelinesDir, cfg.Pipeline.PipelinesDir)
	assert.Equal(t, map[string]string{"txIndex": "l2_tx_index"}, cfg.Pipeline.ColumnMapping)
	require.Len(t, cfg.Source.Contracts, 1)
	assert.Equal(t, []string{"NewL1Block"}, cfg.Source.Contracts[0].Events)
	assert.Equal(t, uint64(DefaultMaxBlockRange), cfg.Source.MaxBlockRange)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative interval", func(c *Config) { c.Service.IntervalSeconds = -1 }},
		{"zero interval", func(c *Config) { c.Service.IntervalSeconds = 0 }},
		{"empty db path", func(c *Config) { c.Pipeline.DBPath = " " }},
		{"bad log format", func(c *Config) { c.Service.LogFormat = "xml" }},
		{"contracts without rpc", func(c *Config) {
			c.Source.Contracts = []ContractConfig{{Address: "0x1", ABI: "[]", Events: []string{"E"}}}
		}},
		{"contract without events", func(c *Config) {
			c.Source.RPCURL = "http://localhost:8545"
			c.Source.Contracts = []ContractConfig{{Address: "0x1", ABI: "[]"}}
		}},
		{"contract without abi", func(c *Config) {
			c.Source.RPCURL = "http://localhost:8545"
			c.Source.Contracts = []ContractConfig{{Address: "0x1", Events: []string{"E"}}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestInvalidIntervalEnv(t *testing.T) {
	_, err := Load("", envMap(map[string]string{"INTERVAL_SECONDS": "soon"}))
	assert.Error(t, err)
}
