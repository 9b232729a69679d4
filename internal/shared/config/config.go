package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Generation GenerationConfig `mapstructure:"generation"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration for the task archive.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GenerationConfig holds generation pipeline configuration.
type GenerationConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	MaxPollAttempts  int           `mapstructure:"max_poll_attempts"`
	MaxConcurrent    int           `mapstructure:"max_concurrent"`
	FallbackStrategy string        `mapstructure:"fallback_strategy"` // "single" or "stitched"
	PlaceholderURL   string        `mapstructure:"placeholder_url"`
	StockCacheTTL    time.Duration `mapstructure:"stock_cache_ttl"`
	RegistryTTL      time.Duration `mapstructure:"registry_ttl"`
}

// ProvidersConfig holds external service credentials and endpoints.
type ProvidersConfig struct {
	Video     VideoProviderConfig `mapstructure:"video"`
	Reasoning ReasoningConfig     `mapstructure:"reasoning"`
	Speech    SpeechConfig        `mapstructure:"speech"`
	Pexels    StockProviderConfig `mapstructure:"pexels"`
	Pixabay   StockProviderConfig `mapstructure:"pixabay"`
}

// VideoProviderConfig holds the generative media service configuration.
type VideoProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// ReasoningConfig holds the reasoning/script service configuration.
type ReasoningConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// SpeechConfig holds the speech synthesis service configuration.
type SpeechConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	Voice   string `mapstructure:"voice"`
}

// StockProviderConfig holds a stock footage provider configuration.
type StockProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// StorageConfig holds object storage configuration for render artifacts.
type StorageConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
}

// Enabled reports whether artifact storage is configured.
func (c *StorageConfig) Enabled() bool {
	return c.Bucket != ""
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/reelforge")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	v.SetEnvPrefix("REELFORGE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override with environment variables for sensitive values
	if key := os.Getenv("REELFORGE_VIDEO_API_KEY"); key != "" {
		cfg.Providers.Video.APIKey = key
	}
	if key := os.Getenv("REELFORGE_REASONING_API_KEY"); key != "" {
		cfg.Providers.Reasoning.APIKey = key
	}
	if key := os.Getenv("REELFORGE_SPEECH_API_KEY"); key != "" {
		cfg.Providers.Speech.APIKey = key
	}
	if key := os.Getenv("REELFORGE_PEXELS_API_KEY"); key != "" {
		cfg.Providers.Pexels.APIKey = key
	}
	if key := os.Getenv("REELFORGE_PIXABAY_API_KEY"); key != "" {
		cfg.Providers.Pixabay.APIKey = key
	}
	if password := os.Getenv("REELFORGE_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("REELFORGE_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if key := os.Getenv("REELFORGE_STORAGE_SECRET_KEY"); key != "" {
		cfg.Storage.SecretAccessKey = key
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "reelforge")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Generation defaults
	v.SetDefault("generation.poll_interval", 10*time.Second)
	v.SetDefault("generation.max_poll_attempts", 60)
	v.SetDefault("generation.max_concurrent", 4)
	v.SetDefault("generation.fallback_strategy", "stitched")
	v.SetDefault("generation.placeholder_url", "https://cdn.reelforge.dev/assets/placeholder.mp4")
	v.SetDefault("generation.stock_cache_ttl", 12*time.Hour)
	v.SetDefault("generation.registry_ttl", 24*time.Hour)

	// Provider defaults
	v.SetDefault("providers.video.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("providers.video.model", "veo-2.0-generate-001")
	v.SetDefault("providers.reasoning.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("providers.reasoning.model", "gemini-2.0-flash")
	v.SetDefault("providers.speech.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("providers.speech.model", "gemini-2.5-flash-preview-tts")
	v.SetDefault("providers.speech.voice", "Kore")
	v.SetDefault("providers.pexels.base_url", "https://api.pexels.com")
	v.SetDefault("providers.pixabay.base_url", "https://pixabay.com/api")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
