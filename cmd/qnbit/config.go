package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the qnbit configuration file (~/.config/qnbit/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	// Kernel selection
	Profile     string `yaml:"profile"`
	BitWidth    *int64 `yaml:"bit_width"`
	BlkLen      *int64 `yaml:"blk_len"`
	ComputeType string `yaml:"compute_type"`
	Workers     *int64 `yaml:"workers"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	if p := os.Getenv("QNBIT_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "qnbit", "config.yaml")
}

// applyLoggingConfig applies config file defaults to the global logging
// flags when they were not set on the command line.
func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyProblemConfig applies config file defaults to the kernel selection
// flags.
func applyProblemConfig(c *cli.Command, cfg Config) {
	if cfg.Profile != "" && !c.IsSet("profile") {
		profile = cfg.Profile
	}
	if cfg.BitWidth != nil && !c.IsSet("bit-width") {
		bitWidth = *cfg.BitWidth
	}
	if cfg.BlkLen != nil && !c.IsSet("blk-len") {
		blkLen = *cfg.BlkLen
	}
	if cfg.ComputeType != "" && !c.IsSet("compute-type") {
		computeType = cfg.ComputeType
	}
}

// applyWorkerConfig applies the config file worker count.
func applyWorkerConfig(c *cli.Command, cfg Config) {
	if cfg.Workers != nil && !c.IsSet("workers") {
		workers = *cfg.Workers
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	applyProblemConfig(c, cfg)
	applyWorkerConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	cfg, err := loadConfigFile(path)
	if err != nil {
		return Config{}
	}
	return cfg
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
