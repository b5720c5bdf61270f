package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Email      EmailConfig
	Outbox     OutboxConfig
	Dispatcher DispatcherConfig
	RateLimit   RateLimitConfig
	Metrics     MetricsConfig
	Medication  MedicationConfig
	Interaction InteractionConfig
}

type ServerConfig struct {
	Port           int `mapstructure:"port" envconfig:"SERVER_PORT"`
	TimeoutSeconds int `mapstructure:"timeoutSeconds" envconfig:"SERVER_TIMEOUT_SECONDS"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host" envconfig:"DB_HOST"`
	Port     int    `mapstructure:"port" envconfig:"DB_PORT"`
	User     string `mapstructure:"user" envconfig:"DB_USER"`
	Password string `mapstructure:"password" envconfig:"DB_PASSWORD"`
	Name     string `mapstructure:"name" envconfig:"DB_NAME"`
	SSLMode  string `mapstructure:"sslmode" envconfig:"DB_SSLMODE"`
}

type RedisConfig struct {
	URL          string `mapstructure:"url" envconfig:"REDIS_URL"`
	PoolSize     int    `mapstructure:"pool_size" envconfig:"REDIS_POOL_SIZE"`
	MinIdleConns int    `mapstructure:"min_idle_conns" envconfig:"REDIS_MIN_IDLE_CONNS"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret" envconfig:"JWT_SECRET"`
	ExpiryHours int    `mapstructure:"expiry_hours" envconfig:"JWT_EXPIRY_HOURS"`
}

type EmailConfig struct {
	Host     string `mapstructure:"host" envconfig:"SMTP_HOST"`
	Port     int    `mapstructure:"port" envconfig:"SMTP_PORT"`
	Username string `mapstructure:"username" envconfig:"SMTP_USERNAME"`
	Password string `mapstructure:"password" envconfig:"SMTP_PASSWORD"`
	From     string `mapstructure:"from" envconfig:"SMTP_FROM"`
}

type OutboxConfig struct {
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" envconfig:"OUTBOX_POLL_INTERVAL_SECONDS"`
	BatchSize           int `mapstructure:"batch_size" envconfig:"OUTBOX_BATCH_SIZE"`
	RetentionDays       int `mapstructure:"retention_days" envconfig:"OUTBOX_RETENTION_DAYS"`
}

type DispatcherConfig struct {
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" envconfig:"DISPATCHER_POLL_INTERVAL_SECONDS"`
	BatchSize           int `mapstructure:"batch_size" envconfig:"DISPATCHER_BATCH_SIZE"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" envconfig:"RATE_LIMIT_RPS"`
	Burst             int     `mapstructure:"burst" envconfig:"RATE_LIMIT_BURST"`
}

type MetricsConfig struct {
	Port int `mapstructure:"port" envconfig:"METRICS_PORT"`
}

type MedicationConfig struct {
	OverdueGraceMinutes int `mapstructure:"overdue_grace_minutes" envconfig:"MEDICATION_OVERDUE_GRACE_MINUTES"`
}

type InteractionConfig struct {
	BaseURL        string `mapstructure:"base_url" envconfig:"INTERACTION_BASE_URL"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" envconfig:"INTERACTION_TIMEOUT_SECONDS"`
}

// LoadConfig reads config.yaml, then lets CARE_-prefixed environment
// variables override individual fields.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("CARE", &config); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	applyDefaults(&config)
	return &config, nil
}

func applyDefaults(c *Config) {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.TimeoutSeconds == 0 {
		c.Server.TimeoutSeconds = 30
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379/0"
	}
	if c.JWT.ExpiryHours == 0 {
		c.JWT.ExpiryHours = 24
	}
	if c.Outbox.PollIntervalSeconds == 0 {
		c.Outbox.PollIntervalSeconds = 5
	}
	if c.Outbox.BatchSize == 0 {
		c.Outbox.BatchSize = 100
	}
	if c.Outbox.RetentionDays == 0 {
		c.Outbox.RetentionDays = 7
	}
	if c.Dispatcher.PollIntervalSeconds == 0 {
		c.Dispatcher.PollIntervalSeconds = 10
	}
	if c.Dispatcher.BatchSize == 0 {
		c.Dispatcher.BatchSize = 50
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 50
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 100
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.Medication.OverdueGraceMinutes == 0 {
		c.Medication.OverdueGraceMinutes = 60
	}
	if c.Interaction.BaseURL == "" {
		c.Interaction.BaseURL = "http://localhost:8090"
	}
	if c.Interaction.TimeoutSeconds == 0 {
		c.Interaction.TimeoutSeconds = 10
	}
}

// JWTExpiry returns the configured token lifetime.
func (c *Config) JWTExpiry() time.Duration {
	return time.Duration(c.JWT.ExpiryHours) * time.Hour
}
