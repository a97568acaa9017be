package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDBPath          = "data/mev_commit_testnet.duckdb"
	DefaultPipelinesDir    = "data/pipelines"
	DefaultPipelineName    = "mev_commit_testnet"
	DefaultIntervalSeconds = 30
	DefaultHealthAddr      = ":8090"
	DefaultMaxBlockRange   = 10000
	DefaultConcurrency     = 4
)

// Config holds all configuration for the pipeline service
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Source   SourceConfig   `yaml:"source"`
}

// ServiceConfig holds service-level settings
type ServiceConfig struct {
	Name            string `yaml:"name"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	HealthAddr      string `yaml:"health_addr"` // empty disables the health server
	LogLevel        string `yaml:"log_level"`
	LogFormat       string `yaml:"log_format"` // "console" or "json"
}

// PipelineConfig describes the load destination and the pipeline identity
type PipelineConfig struct {
	Name               string            `yaml:"name"`
	DBPath             string            `yaml:"db_path"`
	PipelinesDir       string            `yaml:"pipelines_dir"`
	DatasetName        string            `yaml:"dataset_name"`
	ColumnMapping      map[string]string `yaml:"column_mapping"`
	RetainLoadPackages bool              `yaml:"retain_load_packages"`
}

// SourceConfig holds the EVM log source settings
type SourceConfig struct {
	RPCURL        string           `yaml:"rpc_url"`
	StartBlock    uint64           `yaml:"start_block"`
	MaxBlockRange uint64           `yaml:"max_block_range"`
	Confirmations uint64           `yaml:"confirmations"`
	Concurrency   int              `yaml:"concurrency"`
	Contracts     []ContractConfig `yaml:"contracts"`
}

// ContractConfig names a contract and the events to collect from it.
// ABI holds inline ABI JSON; ABIFile is read when ABI is empty.
type ContractConfig struct {
	Name    string   `yaml:"name"`
	Address string   `yaml:"address"`
	ABI     string   `yaml:"abi"`
	ABIFile string   `yaml:"abi_file"`
	Events  []string `yaml:"events"`
}

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Default returns a configuration populated with default values
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:            "duckdb-pipe",
			IntervalSeconds: DefaultIntervalSeconds,
			HealthAddr:      DefaultHealthAddr,
			LogLevel:        "info",
			LogFormat:       "console",
		},
		Pipeline: PipelineConfig{
			Name:         DefaultPipelineName,
			DBPath:       DefaultDBPath,
			PipelinesDir: DefaultPipelinesDir,
		},
		Source: SourceConfig{
			MaxBlockRange: DefaultMaxBlockRange,
			Concurrency:   DefaultConcurrency,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and environment overrides resolved through lookup.
func Load(path string, lookup LookupFunc) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if lookup != nil {
		if err := config.ApplyEnv(lookup); err != nil {
			return nil, err
		}
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides settings from environment variables
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if v, ok := lookupTrimmed(lookup, "DB_PATH"); ok {
		c.Pipeline.DBPath = v
	}
	if v, ok := lookupTrimmed(lookup, "PIPELINE_DIR"); ok {
		c.Pipeline.PipelinesDir = v
	}
	if v, ok := lookupTrimmed(lookup, "RPC_URL"); ok {
		c.Source.RPCURL = v
	}
	if v, ok := lookupTrimmed(lookup, "LOG_LEVEL"); ok {
		c.Service.LogLevel = v
	}
	if v, ok := lookup("HEALTH_ADDR"); ok {
		// An explicitly empty value disables the health server.
		c.Service.HealthAddr = strings.TrimSpace(v)
	}
	if v, ok := lookupTrimmed(lookup, "INTERVAL_SECONDS"); ok {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid INTERVAL_SECONDS: %w", err)
		}
		c.Service.IntervalSeconds = seconds
	}
	return nil
}

// lookupTrimmed returns the variable with surrounding quotes removed. Empty
// values count as unset so the defaults apply.
func lookupTrimmed(lookup LookupFunc, key string) (string, bool) {
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.Trim(strings.TrimSpace(v), "\"'")
	if v == "" {
		return "", false
	}
	return v, true
}

func (c *Config) applyDefaults() {
	if c.Service.IntervalSeconds == 0 {
		c.Service.IntervalSeconds = DefaultIntervalSeconds
	}
	if c.Service.LogLevel == "" {
		c.Service.LogLevel = "info"
	}
	if c.Service.LogFormat == "" {
		c.Service.LogFormat = "console"
	}
	if c.Pipeline.Name == "" {
		c.Pipeline.Name = DefaultPipelineName
	}
	if c.Pipeline.DBPath == "" {
		c.Pipeline.DBPath = DefaultDBPath
	}
	if c.Pipeline.PipelinesDir == "" {
		c.Pipeline.PipelinesDir = DefaultPipelinesDir
	}
	if c.Source.MaxBlockRange == 0 {
		c.Source.MaxBlockRange = DefaultMaxBlockRange
	}
	if c.Source.Concurrency == 0 {
		c.Source.Concurrency = DefaultConcurrency
	}
}

// Validate ensures the configuration is usable
func (c *Config) Validate() error {
	if c.Service.IntervalSeconds <= 0 {
		return fmt.Errorf("interval_seconds must be positive, got %d", c.Service.IntervalSeconds)
	}
	if c.Service.LogFormat != "console" && c.Service.LogFormat != "json" {
		return fmt.Errorf("log_format must be console or json, got %q", c.Service.LogFormat)
	}
	if strings.TrimSpace(c.Pipeline.Name) == "" {
		return fmt.Errorf("pipeline name is required")
	}
	if strings.TrimSpace(c.Pipeline.DBPath) == "" {
		return fmt.Errorf("pipeline db_path is required")
	}
	if c.Source.Concurrency < 0 {
		return fmt.Errorf("source concurrency must be positive, got %d", c.Source.Concurrency)
	}
	if len(c.Source.Contracts) > 0 && c.Source.RPCURL == "" {
		return fmt.Errorf("source rpc_url is required when contracts are configured")
	}
	for i, contract := range c.Source.Contracts {
		if contract.Address == "" {
			return fmt.Errorf("contract %d (%s): address is required", i, contract.Name)
		}
		if contract.ABI == "" && contract.ABIFile == "" {
			return fmt.Errorf("contract %d (%s): abi or abi_file is required", i, contract.Name)
		}
		if len(contract.Events) == 0 {
			return fmt.Errorf("contract %d (%s): at least one event is required", i, contract.Name)
		}
	}
	return nil
}

// Interval returns the delay between pipeline cycles
func (c *ServiceConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Dataset returns the destination schema name, falling back to
// "<pipeline name>_dataset".
func (c *PipelineConfig) Dataset() string {
	if c.DatasetName != "" {
		return c.DatasetName
	}
	return c.Name + "_dataset"
}
