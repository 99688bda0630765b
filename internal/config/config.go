// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Scrape     ScrapeConfig     `mapstructure:"scrape"`
	Render     RenderConfig     `mapstructure:"render"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
}

// ServerConfig controls the admin HTTP surface.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig names the bus resources.
type PubSubConfig struct {
	Provider        string `mapstructure:"provider"`
	ProjectID       string `mapstructure:"project_id"`
	TopicID         string `mapstructure:"topic_id"`
	SubscriptionID  string `mapstructure:"subscription_id"`
	DeadLetterTopic string `mapstructure:"dead_letter_topic"`
}

// StorageConfig selects the blob store for article text.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// ScrapeConfig governs the enrichment fetch step.
type ScrapeConfig struct {
	TrickyDomains   []string      `mapstructure:"tricky_domains"`
	MaxConcurrent   int           `mapstructure:"max_concurrent"`
	GlobalCooldown  time.Duration `mapstructure:"global_cooldown"`
	DomainCooldown  time.Duration `mapstructure:"domain_cooldown"`
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// RenderConfig selects and configures the headless rendering provider.
type RenderConfig struct {
	Provider    string        `mapstructure:"provider"`
	BaseURL     string        `mapstructure:"base_url"`
	AccountID   string        `mapstructure:"account_id"`
	APIToken    string        `mapstructure:"api_token"`
	QPS         float64       `mapstructure:"qps"`
	MaxParallel int           `mapstructure:"max_parallel"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
}

// LLMConfig selects the analysis model.
type LLMConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// EmbeddingsConfig points at the embeddings service.
type EmbeddingsConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIToken  string `mapstructure:"api_token"`
	Dimension int    `mapstructure:"dimension"`
}

// DispatchConfig tunes bus redelivery.
type DispatchConfig struct {
	MaxDeliveryAttempts int           `mapstructure:"max_delivery_attempts"`
	RetryDelay          time.Duration `mapstructure:"retry_delay"`
}

// Load builds a Config from disk and environment. An empty path loads from
// environment variables and defaults alone.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("pubsub.provider", "memory")
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("render.provider", "service")
	v.SetDefault("render.qps", 1.0)
	v.SetDefault("render.max_parallel", 2)
	v.SetDefault("render.nav_timeout", "45s")
	v.SetDefault("scrape.max_concurrent", 8)
	v.SetDefault("scrape.global_cooldown", "1s")
	v.SetDefault("scrape.domain_cooldown", "5s")
	v.SetDefault("scrape.freshness_window", "48h")
	v.SetDefault("scrape.timeout", "2m")
	v.SetDefault("scrape.tricky_domains", []string{
		"reuters.com", "www.reuters.com",
		"nytimes.com", "www.nytimes.com",
		"politico.com", "www.politico.com",
		"ft.com", "www.ft.com",
		"wsj.com", "www.wsj.com",
	})
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("embeddings.dimension", 384)
	v.SetDefault("dispatch.max_delivery_attempts", 5)
	v.SetDefault("dispatch.retry_delay", "30s")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scrape.MaxConcurrent <= 0 {
		return fmt.Errorf("scrape.max_concurrent must be > 0")
	}
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("embeddings.dimension must be > 0")
	}
	switch c.PubSub.Provider {
	case "pubsub":
		if c.PubSub.ProjectID == "" || c.PubSub.TopicID == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_id are required for the pubsub provider")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown pubsub provider %q", c.PubSub.Provider)
	}
	switch c.Storage.Provider {
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs provider")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage provider %q", c.Storage.Provider)
	}
	switch c.Render.Provider {
	case "service":
		// Base URL and credentials may come from the environment at runtime.
	case "chromedp":
		if c.Render.MaxParallel <= 0 {
			return fmt.Errorf("render.max_parallel must be > 0 for the chromedp provider")
		}
	default:
		return fmt.Errorf("unknown render provider %q", c.Render.Provider)
	}
	return nil
}
