// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Corpus, Chat, LLM, Postgres, Kafka, Redis, etc.).
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
	Server    ServerConfig    `yaml:"server"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Chat      ChatConfig      `yaml:"chat"`
	LLM       LLMConfig       `yaml:"llm"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Corpus source kinds.
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// CorpusConfig selects where the knowledge document comes from and how it is
// chunked and searched.
type CorpusConfig struct {
	Source    string `yaml:"source"`
	Path      string `yaml:"path"`
	SourceID  string `yaml:"sourceId"`
	ChunkSize int    `yaml:"chunkSize"`
	TopK      int    `yaml:"topK"`
}

// ChatConfig controls request handling for the chat endpoint.
type ChatConfig struct {
	DefaultSessionID   string `yaml:"defaultSessionId"`
	RAGByDefault       bool   `yaml:"ragByDefault"`
	MaxMessageLength   int    `yaml:"maxMessageLength"`
	RateLimitPerMinute int    `yaml:"rateLimitPerMinute"`
	RateLimitBurst     int    `yaml:"rateLimitBurst"`
}

// LLMConfig holds the chat-completion endpoint and its resilience settings.
type LLMConfig struct {
	BaseURL                 string        `yaml:"baseUrl"`
	APIKey                  string        `yaml:"apiKey"`
	Model                   string        `yaml:"model"`
	MaxTokens               int           `yaml:"maxTokens"`
	Temperature             float64       `yaml:"temperature"`
	Timeout                 time.Duration `yaml:"timeout"`
	MaxAttempts             int           `yaml:"maxAttempts"`
	RequestsPerSecond       float64       `yaml:"requestsPerSecond"`
	Burst                   int           `yaml:"burst"`
	BreakerFailureThreshold int           `yaml:"breakerFailureThreshold"`
	BreakerResetTimeout     time.Duration `yaml:"breakerResetTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ChatEvents string `yaml:"chatEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// AnalyticsConfig controls chat event publishing and aggregation.
type AnalyticsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BufferSize       int           `yaml:"bufferSize"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// AuthConfig controls API-key authentication and per-client request limits
// on the HTTP API. A key's own rate_limit overrides RequestsPerMinute.
type AuthConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
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
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Corpus.Source {
	case SourceFile:
		if c.Corpus.Path == "" {
			return fmt.Errorf("corpus.path is required for source %q", SourceFile)
		}
	case SourcePostgres:
		if c.Corpus.SourceID == "" {
			return fmt.Errorf("corpus.sourceId is required for source %q", SourcePostgres)
		}
	default:
		return fmt.Errorf("unknown corpus.source %q", c.Corpus.Source)
	}
	if c.Corpus.ChunkSize <= 0 {
		return fmt.Errorf("corpus.chunkSize must be positive, got %d", c.Corpus.ChunkSize)
	}
	if c.Corpus.TopK <= 0 {
		return fmt.Errorf("corpus.topK must be positive, got %d", c.Corpus.TopK)
	}
	if c.Chat.DefaultSessionID == "" {
		return fmt.Errorf("chat.defaultSessionId must not be empty")
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Corpus: CorpusConfig{
			Source:    SourceFile,
			Path:      "data/knowledge.txt",
			SourceID:  "knowledge",
			ChunkSize: 800,
			TopK:      3,
		},
		Chat: ChatConfig{
			DefaultSessionID:   "default",
			RAGByDefault:       true,
			MaxMessageLength:   8000,
			RateLimitPerMinute: 30,
			RateLimitBurst:     5,
		},
		LLM: LLMConfig{
			BaseURL:                 "https://api.openai.com/v1",
			Model:                   "gpt-4o-mini",
			MaxTokens:               1024,
			Temperature:             0.2,
			Timeout:                 45 * time.Second,
			MaxAttempts:             3,
			RequestsPerSecond:       5,
			Burst:                   10,
			BreakerFailureThreshold: 5,
			BreakerResetTimeout:     30 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "groundedchat",
			User:            "groundedchat",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "groundedchat-group",
			Topics: KafkaTopics{
				ChatEvents: "chat-events",
			},
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Analytics: AnalyticsConfig{
			Enabled:          true,
			BufferSize:       10000,
			SnapshotInterval: 5 * time.Minute,
		},
		Auth: AuthConfig{
			Enabled:           false,
			RequestsPerMinute: 120,
			Burst:             20,
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

// applyEnvOverrides reads RAG_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RAG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RAG_CORPUS_SOURCE"); v != "" {
		cfg.Corpus.Source = v
	}
	if v := os.Getenv("RAG_CORPUS_PATH"); v != "" {
		cfg.Corpus.Path = v
	}
	if v := os.Getenv("RAG_CORPUS_SOURCE_ID"); v != "" {
		cfg.Corpus.SourceID = v
	}
	if v := os.Getenv("RAG_CHAT_RAG_BY_DEFAULT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Chat.RAGByDefault = b
		}
	}
	if v := os.Getenv("RAG_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("RAG_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("RAG_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if v := os.Getenv("RAG_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("RAG_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("RAG_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("RAG_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("RAG_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("RAG_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("RAG_AUTH_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Auth.Enabled = b
		}
	}
	if v := os.Getenv("RAG_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("RAG_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("RAG_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RAG_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("RAG_ANALYTICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Analytics.Enabled = b
		}
	}
	if v := os.Getenv("RAG_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RAG_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
