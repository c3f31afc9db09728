// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Redis, Postgres, Kafka, Providers, Router, Retrieval).
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
	Server    ServerConfig     `yaml:"server"`
	Redis     RedisConfig      `yaml:"redis"`
	Postgres  PostgresConfig   `yaml:"postgres"`
	Kafka     KafkaConfig      `yaml:"kafka"`
	Providers []ProviderConfig `yaml:"providers"`
	Router    RouterConfig     `yaml:"router"`
	Retrieval RetrievalConfig  `yaml:"retrieval"`
	Logging   LoggingConfig    `yaml:"logging"`
	Metrics   MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// RedisConfig holds Redis connection parameters for the shared cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// PostgresConfig holds PostgreSQL connection parameters for the optional
// ask-history store.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings for the ingest pipeline.
type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumerGroup"`
	DocumentTopic string   `yaml:"documentTopic"`
}

// ProviderConfig describes one answer-generation backend. Kind selects the
// adapter: "openai-compat" for OpenAI-style chat-completions HTTP backends,
// "local" for the offline fallback provider.
type ProviderConfig struct {
	Name      string        `yaml:"name"`
	Kind      string        `yaml:"kind"`
	BaseURL   string        `yaml:"baseUrl"`
	Model     string        `yaml:"model"`
	APIKeyEnv string        `yaml:"apiKeyEnv"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxTokens int           `yaml:"maxTokens"`
}

// RouterConfig controls answer caching and prompt classification. Each
// classifier bucket maps a keyword list to a fixed provider order.
type RouterConfig struct {
	CacheTTL time.Duration      `yaml:"cacheTTL"`
	Buckets  []ClassifierBucket `yaml:"buckets"`
}

// ClassifierBucket names a prompt category, the keywords that select it,
// and the provider order to use for prompts in that category.
type ClassifierBucket struct {
	Name      string   `yaml:"name"`
	Keywords  []string `yaml:"keywords"`
	Providers []string `yaml:"providers"`
}

// RetrievalConfig controls search limits and context assembly.
type RetrievalConfig struct {
	DefaultLimit  int `yaml:"defaultLimit"`
	MaxResults    int `yaml:"maxResults"`
	ExcerptBudget int `yaml:"excerptBudget"`
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
// development: an OpenAI-compatible backend plus the offline fallback
// provider, and the classifier buckets the exam-prep deployment uses.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
		},
		Postgres: PostgresConfig{
			Enabled:         false,
			Host:            "localhost",
			Port:            5432,
			Database:        "studyflow",
			User:            "studyflow",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "studyflow-group",
			DocumentTopic: "document-ingest",
		},
		Providers: []ProviderConfig{
			{
				Name:      "deepseek",
				Kind:      "openai-compat",
				BaseURL:   "https://api.deepseek.com",
				Model:     "deepseek-chat",
				APIKeyEnv: "DEEPSEEK_API_KEY",
				Timeout:   30 * time.Second,
				MaxTokens: 512,
			},
			{
				Name: "local",
				Kind: "local",
			},
		},
		Router: RouterConfig{
			CacheTTL: time.Hour,
			Buckets: []ClassifierBucket{
				{
					Name: "quantitative",
					Keywords: []string{
						"math", "equation", "formula", "solve", "calculate",
						"algebra", "geometry", "graph", "function", "derivative",
						"integral", "logarithm", "trigonometry", "root",
						"fraction", "percent", "area", "volume",
					},
					Providers: []string{"deepseek", "local"},
				},
				{
					Name: "linguistic",
					Keywords: []string{
						"grammar", "spelling", "punctuation", "essay", "text",
						"sentence", "paragraph", "literature", "analysis",
						"comma", "clause", "adverb", "conjunction",
					},
					Providers: []string{"local", "deepseek"},
				},
			},
		},
		Retrieval: RetrievalConfig{
			DefaultLimit:  5,
			MaxResults:    50,
			ExcerptBudget: 200,
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

// applyEnvOverrides reads SF_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SF_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SF_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SF_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SF_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SF_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SF_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SF_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SF_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SF_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SF_KAFKA_DOCUMENT_TOPIC"); v != "" {
		cfg.Kafka.DocumentTopic = v
	}
	if v := os.Getenv("SF_ROUTER_CACHE_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			cfg.Router.CacheTTL = ttl
		}
	}
	if v := os.Getenv("SF_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SF_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
