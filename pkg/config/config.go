// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Server, Rerank, Bench, Kafka, Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Rerank  RerankConfig  `yaml:"rerank"`
	Bench   BenchConfig   `yaml:"bench"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// RerankConfig controls the scoring worker pool and per-request limits.
// Workers <= 0 sizes the pool to the available hardware concurrency.
type RerankConfig struct {
	Workers        int           `yaml:"workers"`
	MaxDocs        int           `yaml:"maxDocs"`
	MaxQueryTokens int           `yaml:"maxQueryTokens"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// BenchConfig caps the synthetic workload shapes accepted by the bench
// endpoint, so a stray request cannot pin every core indefinitely.
type BenchConfig struct {
	MaxDocs       int `yaml:"maxDocs"`
	MaxTokens     int `yaml:"maxTokens"`
	MaxDim        int `yaml:"maxDim"`
	DefaultDocs   int `yaml:"defaultDocs"`
	DefaultTokens int `yaml:"defaultTokens"`
	DefaultDim    int `yaml:"defaultDim"`
}

// KafkaConfig holds the analytics event stream settings. Disabled by
// default; the service is fully functional without a broker.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8088,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Rerank: RerankConfig{
			Workers:        0,
			MaxDocs:        10000,
			MaxQueryTokens: 4096,
			RequestTimeout: 25 * time.Second,
		},
		Bench: BenchConfig{
			MaxDocs:       5000,
			MaxTokens:     1024,
			MaxDim:        2048,
			DefaultDocs:   100,
			DefaultTokens: 64,
			DefaultDim:    128,
		},
		Kafka: KafkaConfig{
			Enabled: false,
			Brokers: []string{"localhost:9092"},
			Topic:   "rerank-events",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads RD_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RD_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RD_RERANK_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Rerank.Workers = n
		}
	}
	if v := os.Getenv("RD_RERANK_MAX_DOCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Rerank.MaxDocs = n
		}
	}
	if v := os.Getenv("RD_RERANK_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Rerank.RequestTimeout = d
		}
	}
	if v := os.Getenv("RD_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("RD_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("RD_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("RD_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RD_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("RD_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
