package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/akave-ai/logreader/internal/model"
)

const (
	envPrefix  = "LOGREADER_"
	envFileVar = envPrefix + "CONFIG_FILE"
)

type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Reader        ReaderConfig         `koanf:"reader" validate:"required"`
	Sink          SinkConfig           `koanf:"sink" validate:"required"`
	Database      DatabaseConfig       `koanf:"database"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port         string        `koanf:"port" validate:"required"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" validate:"gt=0"`
}

// ReaderConfig drives discovery and the scan loop.
type ReaderConfig struct {
	ScanConnStrings          []string      `koanf:"scan_conn_strings"`
	ScanSensitiveConnStrings []string      `koanf:"scan_sensitive_conn_strings"`
	ExcludeTables            []string      `koanf:"exclude_tables"`
	ScanInterval             time.Duration `koanf:"scan_interval" validate:"gt=0"`
	Concurrency              int           `koanf:"concurrency" validate:"min=1"`
	BatchSize                int           `koanf:"batch_size" validate:"min=1,max=1000"`
	MaxIterations            int           `koanf:"max_iterations" validate:"min=1"`
	ParseContextAsJSON       bool          `koanf:"parse_context_as_json"`
	HealthStaleAfter         time.Duration `koanf:"health_stale_after" validate:"gt=0"`
	SlowCount                int           `koanf:"slow_count" validate:"min=0"`
	SlowElapsed              time.Duration `koanf:"slow_elapsed" validate:"gte=0"`
}

// Account is one storage account to scan.
type Account struct {
	ConnString     string
	Classification model.Classification
}

// Accounts lists default accounts followed by sensitive ones. Blank
// entries are dropped.
func (r ReaderConfig) Accounts() []Account {
	out := make([]Account, 0, len(r.ScanConnStrings)+len(r.ScanSensitiveConnStrings))
	add := func(list []string, class model.Classification) {
		for _, cs := range list {
			if cs = strings.TrimSpace(cs); cs != "" {
				out = append(out, Account{ConnString: cs, Classification: class})
			}
		}
	}
	add(r.ScanConnStrings, model.ClassificationDefault)
	add(r.ScanSensitiveConnStrings, model.ClassificationSensitive)
	return out
}

// SinkConfig selects and configures delivery channels. Kind-specific
// sections are validated by the matching sink factory.
type SinkConfig struct {
	Kinds      []string         `koanf:"kinds" validate:"required,min=1,dive,required"`
	Stream     StreamConfig     `koanf:"stream"`
	Aggregator AggregatorConfig `koanf:"aggregator"`
	Kafka      KafkaConfig      `koanf:"kafka"`
	Archive    ArchiveConfig    `koanf:"archive"`
}

type StreamConfig struct {
	Host         string        `koanf:"host"`
	Port         int           `koanf:"port"`
	RetryDelay   time.Duration `koanf:"retry_delay"`
	MaxLifetime  time.Duration `koanf:"max_lifetime"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type AggregatorConfig struct {
	URL       string            `koanf:"url"`
	Topic     string            `koanf:"topic"`
	Sender    string            `koanf:"sender"`
	BatchSize int               `koanf:"batch_size"`
	Timeout   time.Duration     `koanf:"timeout"`
	Headers   map[string]string `koanf:"headers"`
}

type KafkaConfig struct {
	Brokers      []string      `koanf:"brokers"`
	Topic        string        `koanf:"topic"`
	BatchTimeout time.Duration `koanf:"batch_timeout"`
}

type ArchiveConfig struct {
	Endpoint  string `koanf:"endpoint"`
	Region    string `koanf:"region"`
	Bucket    string `koanf:"bucket"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Prefix    string `koanf:"prefix"`
}

// DatabaseConfig applies to accounts given as postgres:// connection strings.
type DatabaseConfig struct {
	Schema   string `koanf:"schema"`
	MaxConns int32  `koanf:"max_conns" validate:"min=0"`
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=trace debug info warn error none"`
}

func defaults() map[string]any {
	return map[string]any{
		"primary.env": "development",

		"server.port":          "8080",
		"server.read_timeout":  30 * time.Second,
		"server.write_timeout": 30 * time.Second,
		"server.idle_timeout":  60 * time.Second,

		"reader.scan_interval":         time.Second,
		"reader.concurrency":           8,
		"reader.batch_size":            1000,
		"reader.max_iterations":        10,
		"reader.parse_context_as_json": false,
		"reader.health_stale_after":    10 * time.Minute,
		"reader.slow_count":            600,
		"reader.slow_elapsed":          10 * time.Second,

		"sink.kinds":               []string{"stream"},
		"sink.stream.retry_delay":  2 * time.Second,
		"sink.stream.max_lifetime": 10 * time.Minute,
		"sink.stream.dial_timeout": 10 * time.Second,
		"sink.aggregator.sender":   "logreader",
		"sink.aggregator.timeout":  10 * time.Second,

		"database.schema":    "public",
		"database.max_conns": 4,
		"database.log_level": "warn",

		"observability.logging.level": "info",
	}
}

// LoadConfig reads defaults, then the optional YAML file named by
// LOGREADER_CONFIG_FILE, then LOGREADER_* environment variables. A double
// underscore in a variable name marks nesting:
// LOGREADER_READER__BATCH_SIZE sets reader.batch_size.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := os.Getenv(envFileVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		if s == envFileVar {
			return ""
		}
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	mainConfig := &Config{}
	if err := k.Unmarshal("", mainConfig); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(mainConfig); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if mainConfig.Observability == nil {
		mainConfig.Observability = DefaultObservabilityConfig()
	}
	if mainConfig.Observability.ServiceName == "" {
		mainConfig.Observability.ServiceName = "logreader"
	}
	mainConfig.Observability.Environment = mainConfig.Primary.Env

	if err := mainConfig.Observability.Validate(); err != nil {
		return nil, fmt.Errorf("invalid observability config: %w", err)
	}

	return mainConfig, nil
}
