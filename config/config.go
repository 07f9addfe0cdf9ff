/*
Package config loads runtime configuration for the server and the CLI.

SOURCES (later wins):
  1. Built-in defaults
  2. .env file in the working directory (optional)
  3. YAML file (path argument or LEDGERONE_CONFIG)
  4. Environment variables

YAML SCHEMA:
  http:
    port: 8080
  database:
    path: ledgerone.db
  source:
    kind: sqlite          # sqlite | file | postgres
    path: events.jsonl    # file source
    postgres_url: postgres://...
  pipeline:
    workers: 8
    fill_gaps: false
    skip_idempotence: false
    severities:
      dangling_reference: fatal
  kafka:
    brokers: [localhost:9092]
    topic: ledgerone.runs
  log:
    level: info
    pretty: false

ENVIRONMENT:
  LEDGERONE_HTTP_PORT, LEDGERONE_DB_PATH, LEDGERONE_SOURCE,
  LEDGERONE_SOURCE_PATH, DATABASE_URL, LEDGERONE_WORKERS,
  LEDGERONE_FILL_GAPS, KAFKA_BROKERS, LEDGERONE_KAFKA_TOPIC, LOG_LEVEL
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	SourceSQLite   = "sqlite"
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Source   SourceConfig   `yaml:"source"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type SourceConfig struct {
	Kind        string `yaml:"kind"`
	Path        string `yaml:"path"`
	PostgresURL string `yaml:"postgres_url"`
}

type PipelineConfig struct {
	Workers         int               `yaml:"workers"`
	FillGaps        bool              `yaml:"fill_gaps"`
	SkipIdempotence bool              `yaml:"skip_idempotence"`
	Severities      map[string]string `yaml:"severities"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Enabled reports whether run notifications go to Kafka.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 && k.Topic != "" }

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Path: "ledgerone.db"},
		Source:   SourceConfig{Kind: SourceSQLite},
		Kafka:    KafkaConfig{Topic: "ledgerone.runs"},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads configuration from path (or LEDGERONE_CONFIG when path is
// empty) and applies environment overrides.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv("LEDGERONE_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	cfg.HTTP.Port = getenvIntDefault("LEDGERONE_HTTP_PORT", cfg.HTTP.Port)
	cfg.Database.Path = getenvDefault("LEDGERONE_DB_PATH", cfg.Database.Path)
	cfg.Source.Kind = getenvDefault("LEDGERONE_SOURCE", cfg.Source.Kind)
	cfg.Source.Path = getenvDefault("LEDGERONE_SOURCE_PATH", cfg.Source.Path)
	cfg.Source.PostgresURL = getenvDefault("DATABASE_URL", cfg.Source.PostgresURL)
	cfg.Pipeline.Workers = getenvIntDefault("LEDGERONE_WORKERS", cfg.Pipeline.Workers)
	cfg.Pipeline.FillGaps = getenvBoolDefault("LEDGERONE_FILL_GAPS", cfg.Pipeline.FillGaps)
	if brokers := splitCSV(os.Getenv("KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.Kafka.Brokers = brokers
	}
	cfg.Kafka.Topic = getenvDefault("LEDGERONE_KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("config: invalid http port %d", c.HTTP.Port)
	}
	if c.Pipeline.Workers < 0 {
		return fmt.Errorf("config: workers must be >= 0, got %d", c.Pipeline.Workers)
	}
	switch c.Source.Kind {
	case SourceSQLite:
		if c.Database.Path == "" {
			return errors.New("config: database path required for sqlite source")
		}
	case SourceFile:
		if c.Source.Path == "" {
			return errors.New("config: source path required for file source")
		}
	case SourcePostgres:
		if c.Source.PostgresURL == "" {
			return errors.New("config: postgres_url required for postgres source")
		}
	default:
		return fmt.Errorf("config: unknown source kind %q", c.Source.Kind)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Logger builds the root logger described by the log section.
func (c Config) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if c.Log.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Str("service", "ledgerone").Logger()
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
