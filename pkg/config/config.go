package config

import "time"

// Config holds runtime configuration for the ClearCut bot.
type Config struct {
	AppEnv string `mapstructure:"app_env"`

	Logger LoggerConfig `mapstructure:"logger"`
	Bot    BotConfig    `mapstructure:"bot" validate:"required"`
	Server ServerConfig `mapstructure:"server"`
	DB     DBConfig     `mapstructure:"db" validate:"required"`
	Redis  RedisConfig  `mapstructure:"redis"`

	RemoveBG  RemoveBGConfig  `mapstructure:"removebg" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
}

// LoggerConfig controls slog output format, level and file rotation.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // text or json
	File       string `mapstructure:"file"`   // empty means stdout only
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// BotConfig configures the Telegram transport and the administrative surface.
type BotConfig struct {
	Token        string        `mapstructure:"token" validate:"required"`
	Mode         string        `mapstructure:"mode" validate:"oneof=webhook longpoll"`
	WebhookURL   string        `mapstructure:"webhook_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	AdminIDs     []int64       `mapstructure:"admin_ids" validate:"min=1"`
	LogChannelID int64         `mapstructure:"log_channel_id" validate:"required"`
	DailyCredits int           `mapstructure:"daily_credits" validate:"min=1"`
}

// ServerConfig configures HTTP listeners.
type ServerConfig struct {
	Port            string        `mapstructure:"port"`         // webhook listener
	MetricsPort     string        `mapstructure:"metrics_port"` // /metrics and /healthz
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DBConfig holds PostgreSQL connection parameters.
type DBConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     string `mapstructure:"port" validate:"required"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password" validate:"required"`
	Name     string `mapstructure:"name" validate:"required"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr" validate:"required"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

// RemoveBGConfig configures the background removal API client.
type RemoveBGConfig struct {
	APIKey  string        `mapstructure:"api_key" validate:"required"`
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Size    string        `mapstructure:"size"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RateLimitRule describes a single limit over a time window.
type RateLimitRule struct {
	Limit  int    `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

// RateLimitConfig configures per-user rate limiting.
type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	PerUser   RateLimitRule `mapstructure:"per_user"`
	Whitelist []int64       `mapstructure:"whitelist"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

// IsAdmin reports whether the given Telegram id belongs to an administrator.
func (c *BotConfig) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// DSN returns the PostgreSQL connection string.
func (c *DBConfig) DSN() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return "host=" + c.Host + " port=" + c.Port + " user=" + c.User +
		" password=" + c.Password + " dbname=" + c.Name + " sslmode=" + sslmode
}
