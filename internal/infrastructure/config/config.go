package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	Server      ServerConfig   `mapstructure:"server"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Birdeye     BirdeyeConfig  `mapstructure:"birdeye"`
	Jupiter     JupiterConfig  `mapstructure:"jupiter"`
	Solana      SolanaConfig   `mapstructure:"solana"`
	Airtable    AirtableConfig `mapstructure:"airtable"`
	Email       EmailConfig    `mapstructure:"email"`
	Cache       CacheConfig    `mapstructure:"cache"`
	Workers     WorkerConfig   `mapstructure:"workers"`
	Tracing     TracingConfig  `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	Host            string   `mapstructure:"host"`
	ReadTimeout     int      `mapstructure:"read_timeout"`
	WriteTimeout    int      `mapstructure:"write_timeout"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	RateLimitPerMin int      `mapstructure:"rate_limit_per_min"`
	MaxBodyBytes    int64    `mapstructure:"max_body_bytes"`
	// Limits shared across replicas through Redis; ignored without Redis.
	SharedRateLimitPerMin int `mapstructure:"shared_rate_limit_per_min"`
	ProxyRateLimitPerMin  int `mapstructure:"proxy_rate_limit_per_min"`
}

// RedisConfig configures the persistent store. When Enabled is false the
// service keeps its cache tiers in process memory only.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type BirdeyeConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"`
}

type JupiterConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"`
}

type SolanaConfig struct {
	RPCURL  string `mapstructure:"rpc_url"`
	Timeout int    `mapstructure:"timeout"`
}

type AirtableConfig struct {
	APIKey             string `mapstructure:"api_key"`
	BaseID             string `mapstructure:"base_id"`
	BaseURL            string `mapstructure:"base_url"`
	PurchasesTable     string `mapstructure:"purchases_table"`
	CashoutsTable      string `mapstructure:"cashouts_table"`
	NotificationsTable string `mapstructure:"notifications_table"`
	HoldingsTable      string `mapstructure:"holdings_table"`
	Timeout            int    `mapstructure:"timeout"`
}

// EmailConfig configures admin notifications for new tickets.
type EmailConfig struct {
	SendGridAPIKey string `mapstructure:"sendgrid_api_key"`
	FromEmail      string `mapstructure:"from_email"`
	FromName       string `mapstructure:"from_name"`
	AdminEmail     string `mapstructure:"admin_email"`
}

// CacheConfig tunes the token price cache and the proxy aggregation.
type CacheConfig struct {
	ProxyTTLSeconds       int `mapstructure:"proxy_ttl_seconds"`
	ProxyChunkSize        int `mapstructure:"proxy_chunk_size"`
	ProxyWorkers          int `mapstructure:"proxy_workers"`
	ProxyMaxEntries       int `mapstructure:"proxy_max_entries"`
	FailedRetrySeconds    int `mapstructure:"failed_retry_seconds"`
	FailedMaxAttempts     int `mapstructure:"failed_max_attempts"`
	SupplyTTLHours        int `mapstructure:"supply_ttl_hours"`
	BatchSize             int `mapstructure:"batch_size"`
	BatchDelayMillis      int `mapstructure:"batch_delay_millis"`
	BatchMaxRetries       int `mapstructure:"batch_max_retries"`
	BatchRetryBaseMillis  int `mapstructure:"batch_retry_base_millis"`
	AccessFlushEvery      int `mapstructure:"access_flush_every"`
	WalletPrefetchMinutes int `mapstructure:"wallet_prefetch_minutes"`
	WalletValidMinutes    int `mapstructure:"wallet_valid_minutes"`
}

type WorkerConfig struct {
	CacheWarmerEnabled  bool   `mapstructure:"cache_warmer_enabled"`
	CacheWarmerSchedule string `mapstructure:"cache_warmer_schedule"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	CollectorURL string  `mapstructure:"collector_url"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Insecure     bool    `mapstructure:"insecure"`
}

// ProxyTTL returns the aggregation cache lifetime.
func (c CacheConfig) ProxyTTL() time.Duration {
	return time.Duration(c.ProxyTTLSeconds) * time.Second
}

// BatchDelay returns the pause between progressive batches.
func (c CacheConfig) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelayMillis) * time.Millisecond
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 120)
	viper.SetDefault("server.allowed_origins", []string{"*"})
	viper.SetDefault("server.rate_limit_per_min", 300)
	viper.SetDefault("server.max_body_bytes", 1<<20)
	viper.SetDefault("server.shared_rate_limit_per_min", 600)
	viper.SetDefault("server.proxy_rate_limit_per_min", 120)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	viper.SetDefault("birdeye.base_url", "https://public-api.birdeye.so")
	viper.SetDefault("birdeye.timeout", 15)

	viper.SetDefault("jupiter.base_url", "https://lite-api.jup.ag")
	viper.SetDefault("jupiter.timeout", 10)

	viper.SetDefault("solana.rpc_url", "https://api.mainnet-beta.solana.com")
	viper.SetDefault("solana.timeout", 20)

	viper.SetDefault("airtable.base_url", "https://api.airtable.com/v0")
	viper.SetDefault("airtable.purchases_table", "Purchases")
	viper.SetDefault("airtable.cashouts_table", "Cashouts")
	viper.SetDefault("airtable.notifications_table", "Notifications")
	viper.SetDefault("airtable.holdings_table", "Holdings")
	viper.SetDefault("airtable.timeout", 15)

	viper.SetDefault("email.from_email", "no-reply@stockline.app")
	viper.SetDefault("email.from_name", "Stockline")

	viper.SetDefault("cache.proxy_ttl_seconds", 15)
	viper.SetDefault("cache.proxy_chunk_size", 100)
	viper.SetDefault("cache.proxy_workers", 3)
	viper.SetDefault("cache.proxy_max_entries", 10000)
	viper.SetDefault("cache.failed_retry_seconds", 30)
	viper.SetDefault("cache.failed_max_attempts", 0)
	viper.SetDefault("cache.supply_ttl_hours", 24)
	viper.SetDefault("cache.batch_size", 5)
	viper.SetDefault("cache.batch_delay_millis", 4000)
	viper.SetDefault("cache.batch_max_retries", 2)
	viper.SetDefault("cache.batch_retry_base_millis", 2000)
	viper.SetDefault("cache.access_flush_every", 5)
	viper.SetDefault("cache.wallet_prefetch_minutes", 5)
	viper.SetDefault("cache.wallet_valid_minutes", 10)

	viper.SetDefault("workers.cache_warmer_enabled", true)
	viper.SetDefault("workers.cache_warmer_schedule", "@every 5m")

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.collector_url", "localhost:4317")
	viper.SetDefault("tracing.sample_rate", 0.1)
	viper.SetDefault("tracing.insecure", true)
}

func overrideFromEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("server.port", p)
		}
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		var list []string
		for _, part := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				list = append(list, trimmed)
			}
		}
		if len(list) > 0 {
			viper.Set("server.allowed_origins", list)
		}
	}

	if host := os.Getenv("REDIS_HOST"); host != "" {
		viper.Set("redis.host", host)
		viper.Set("redis.enabled", true)
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		viper.Set("redis.password", password)
	}

	if key := os.Getenv("BIRDEYE_API_KEY"); key != "" {
		viper.Set("birdeye.api_key", key)
	}
	if key := os.Getenv("JUPITER_API_KEY"); key != "" {
		viper.Set("jupiter.api_key", key)
	}
	if rpcURL := os.Getenv("SOLANA_RPC_URL"); rpcURL != "" {
		viper.Set("solana.rpc_url", rpcURL)
	}

	if key := os.Getenv("AIRTABLE_API_KEY"); key != "" {
		viper.Set("airtable.api_key", key)
	}
	if baseID := os.Getenv("AIRTABLE_BASE_ID"); baseID != "" {
		viper.Set("airtable.base_id", baseID)
	}

	if key := os.Getenv("SENDGRID_API_KEY"); key != "" {
		viper.Set("email.sendgrid_api_key", key)
	}
	if admin := os.Getenv("ADMIN_EMAIL"); admin != "" {
		viper.Set("email.admin_email", admin)
	}

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		viper.Set("tracing.collector_url", endpoint)
		viper.Set("tracing.enabled", true)
	}
}

func validate(config *Config) error {
	if config.Birdeye.APIKey == "" {
		return fmt.Errorf("birdeye api key is required")
	}

	if config.Solana.RPCURL == "" {
		return fmt.Errorf("solana rpc url is required")
	}

	if config.Environment == "production" && (config.Airtable.APIKey == "" || config.Airtable.BaseID == "") {
		return fmt.Errorf("airtable configuration is incomplete")
	}

	if config.Cache.ProxyWorkers <= 0 || config.Cache.ProxyChunkSize <= 0 || config.Cache.BatchSize <= 0 {
		return fmt.Errorf("cache batching configuration must be positive")
	}

	return nil
}
