// Package config loads service configuration from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogFile  string `mapstructure:"LOG_FILE"`

	StoreDriver string `mapstructure:"STORE_DRIVER"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	SQLitePath  string `mapstructure:"SQLITE_PATH"`
	MySQLDSN    string `mapstructure:"MYSQL_DSN"`
	SeedOnEmpty bool   `mapstructure:"SEED_ON_EMPTY"`

	KafkaBrokers   []string `mapstructure:"-"`
	CommandTopic   string   `mapstructure:"COMMAND_TOPIC"`
	EventTopic     string   `mapstructure:"EVENT_TOPIC"`
	ConsumerGroup  string   `mapstructure:"CONSUMER_GROUP"`
	CommandWorkers int      `mapstructure:"COMMAND_WORKERS"`

	MQTTBrokerURL   string `mapstructure:"MQTT_BROKER_URL"`
	MQTTClientID    string `mapstructure:"MQTT_CLIENT_ID"`
	MQTTTopicPrefix string `mapstructure:"MQTT_TOPIC_PREFIX"`

	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	TraceSampleRate float64 `mapstructure:"TRACE_SAMPLE_RATE"`

	APIKeys []string `mapstructure:"-"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "LOG_FILE",
	"STORE_DRIVER", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "SQLITE_PATH", "MYSQL_DSN", "SEED_ON_EMPTY",
	"KAFKA_BROKERS", "COMMAND_TOPIC", "EVENT_TOPIC", "CONSUMER_GROUP", "COMMAND_WORKERS",
	"MQTT_BROKER_URL", "MQTT_CLIENT_ID", "MQTT_TOPIC_PREFIX",
	"OTLP_ENDPOINT", "TRACE_SAMPLE_RATE",
	"API_KEYS",
}

// Load reads .env if present, then the environment. Environment values win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", DriverMemory)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("SQLITE_PATH", "mesh.db")
	v.SetDefault("SEED_ON_EMPTY", true)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("COMMAND_TOPIC", "mesh.commands")
	v.SetDefault("EVENT_TOPIC", "mesh.events")
	v.SetDefault("CONSUMER_GROUP", "mesh-command-worker")
	v.SetDefault("COMMAND_WORKERS", 8)
	v.SetDefault("MQTT_CLIENT_ID", "mesh-api")
	v.SetDefault("MQTT_TOPIC_PREFIX", "mesh/alerts")
	v.SetDefault("TRACE_SAMPLE_RATE", 0.1)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.APIKeys = splitList(v.GetString("API_KEYS"))
	cfg.StoreDriver = strings.ToLower(cfg.StoreDriver)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks driver-specific requirements
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case DriverMySQL:
		if c.MySQLDSN == "" {
			return fmt.Errorf("MYSQL_DSN is required for the mysql store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATE must be between 0 and 1")
	}
	if c.CommandWorkers < 1 {
		return fmt.Errorf("COMMAND_WORKERS must be positive")
	}
	if c.IsProduction() && len(c.APIKeys) == 0 {
		return fmt.Errorf("API_KEYS is required in production")
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
