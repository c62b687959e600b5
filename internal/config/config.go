package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bassista/go_chatwall/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Performance modes select the supersampling factor used by the compositor.
const (
	PerformanceBalanced    = "balanced"
	PerformanceQuality     = "quality"
	PerformancePerformance = "performance"
)

// Directory backends.
const (
	DirectoryMemory = "memory"
	DirectorySQLite = "sqlite"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Data      DataConfig      `mapstructure:"data"`
	Render    RenderConfig    `mapstructure:"render"`
	Coalescer CoalescerConfig `mapstructure:"coalescer"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Misc      MiscConfig      `mapstructure:"misc"`
}

type ServerConfig struct {
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutDownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	CORSAllowedOrigins string        `mapstructure:"cors_allowed_origins"`
}

type DataConfig struct {
	FilePath        string        `mapstructure:"file_path"`
	PersistInterval time.Duration `mapstructure:"persist_interval"`
	WatchEnabled    bool          `mapstructure:"watch_enabled"`
}

type RenderConfig struct {
	PerformanceMode string        `mapstructure:"performance_mode"`
	CacheBudget     int64         `mapstructure:"cache_budget_bytes"`
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	DefaultLocale   string        `mapstructure:"default_locale"`
	Timezone        string        `mapstructure:"timezone"`
}

type CoalescerConfig struct {
	Window    time.Duration `mapstructure:"window"`
	MaxBatch  int           `mapstructure:"max_batch"`
	QueueSize int           `mapstructure:"queue_size"`
}

type FetchConfig struct {
	Attempts          int           `mapstructure:"attempts"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	ResolveTimeout    time.Duration `mapstructure:"resolve_timeout"`
	PositiveCapacity  int           `mapstructure:"positive_capacity"`
	PositiveTTL       time.Duration `mapstructure:"positive_ttl"`
	NegativeCapacity  int           `mapstructure:"negative_capacity"`
	NegativeTTL       time.Duration `mapstructure:"negative_ttl"`
	Workers           int           `mapstructure:"workers"`
	ExternalAvatarURL string        `mapstructure:"external_avatar_url"`
}

type DirectoryConfig struct {
	Type         string `mapstructure:"type"`
	SQLitePath   string `mapstructure:"sqlite_path"`
	HistorySize  int    `mapstructure:"history_size"`
	SeedDemoData bool   `mapstructure:"seed_demo_data"`
}

type TelemetryConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

type MiscConfig struct {
	LogLevel        string `mapstructure:"log_level"`
	GinMode         string `mapstructure:"gin_mode"`
	HoneybadgerKey  string `mapstructure:"honeybadger_api_key"`
	EnvironmentName string `mapstructure:"environment"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8084)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.request_timeout", 5*time.Second)
	v.SetDefault("server.cors_allowed_origins", "*")

	v.SetDefault("data.file_path", "./config/data/screens.json")
	v.SetDefault("data.persist_interval", 5*time.Second)
	v.SetDefault("data.watch_enabled", true)

	v.SetDefault("render.performance_mode", PerformanceBalanced)
	v.SetDefault("render.cache_budget_bytes", int64(96*1024*1024))
	v.SetDefault("render.idle_ttl", 15*time.Minute)
	v.SetDefault("render.sweep_interval", time.Minute)
	v.SetDefault("render.default_locale", "en_us")
	v.SetDefault("render.timezone", "Local")

	v.SetDefault("coalescer.window", 150*time.Millisecond)
	v.SetDefault("coalescer.max_batch", 512)
	v.SetDefault("coalescer.queue_size", 4096)

	v.SetDefault("fetch.attempts", 2)
	v.SetDefault("fetch.connect_timeout", 3*time.Second)
	v.SetDefault("fetch.read_timeout", 5*time.Second)
	v.SetDefault("fetch.resolve_timeout", 750*time.Millisecond)
	v.SetDefault("fetch.positive_capacity", 128)
	v.SetDefault("fetch.positive_ttl", 30*time.Minute)
	v.SetDefault("fetch.negative_capacity", 256)
	v.SetDefault("fetch.negative_ttl", 10*time.Minute)
	v.SetDefault("fetch.workers", 4)
	v.SetDefault("fetch.external_avatar_url", "https://mc-heads.net/avatar/{name}")

	v.SetDefault("directory.type", DirectoryMemory)
	v.SetDefault("directory.sqlite_path", "./config/data/chat.db")
	v.SetDefault("directory.history_size", 50)
	v.SetDefault("directory.seed_demo_data", true)

	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", "chatwall")

	v.SetDefault("misc.log_level", "info")
	v.SetDefault("misc.gin_mode", "release")
	v.SetDefault("misc.honeybadger_api_key", "")
	v.SetDefault("misc.environment", "")
}

// LoadConfig reads config.yaml from ./config or the working directory,
// then lets CHATWALL_* environment variables override any key
// (CHATWALL_RENDER_PERFORMANCE_MODE overrides render.performance_mode).
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		logger.WithComponent("config").Debug("loaded environment from .env")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("CHATWALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		logger.WithComponent("config").Info("no config file found, using defaults and env vars")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Render.PerformanceMode = strings.ToLower(strings.TrimSpace(cfg.Render.PerformanceMode))
	cfg.Directory.Type = strings.ToLower(strings.TrimSpace(cfg.Directory.Type))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Location resolves the configured render timezone.
func (c *Config) Location() *time.Location {
	tz := strings.TrimSpace(c.Render.Timezone)
	if tz == "" || tz == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.IdleTimeout <= 0 {
		return errors.New("server timeouts must be positive")
	}
	if c.Server.ShutDownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	if c.Server.RequestTimeout < 0 {
		return errors.New("server.request_timeout cannot be negative")
	}

	if strings.TrimSpace(c.Data.FilePath) == "" {
		return errors.New("data.file_path is required")
	}
	if c.Data.PersistInterval <= 0 {
		return errors.New("data.persist_interval must be positive")
	}

	switch c.Render.PerformanceMode {
	case PerformanceBalanced, PerformanceQuality, PerformancePerformance:
	default:
		return fmt.Errorf("render.performance_mode %q is not one of balanced, quality, performance", c.Render.PerformanceMode)
	}
	if c.Render.CacheBudget <= 0 {
		return errors.New("render.cache_budget_bytes must be positive")
	}
	if c.Render.IdleTTL <= 0 || c.Render.SweepInterval <= 0 {
		return errors.New("render.idle_ttl and render.sweep_interval must be positive")
	}
	if tz := strings.TrimSpace(c.Render.Timezone); tz != "" && tz != "Local" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("render.timezone: %w", err)
		}
	}

	if c.Coalescer.Window <= 0 {
		return errors.New("coalescer.window must be positive")
	}
	if c.Coalescer.MaxBatch < 1 || c.Coalescer.QueueSize < 1 {
		return errors.New("coalescer.max_batch and coalescer.queue_size must be at least 1")
	}

	if c.Fetch.Attempts < 1 {
		return errors.New("fetch.attempts must be at least 1")
	}
	if c.Fetch.ConnectTimeout <= 0 || c.Fetch.ReadTimeout <= 0 || c.Fetch.ResolveTimeout <= 0 {
		return errors.New("fetch timeouts must be positive")
	}
	if c.Fetch.PositiveCapacity < 1 || c.Fetch.NegativeCapacity < 1 {
		return errors.New("fetch cache capacities must be at least 1")
	}
	if c.Fetch.PositiveTTL <= 0 || c.Fetch.NegativeTTL <= 0 {
		return errors.New("fetch cache ttls must be positive")
	}
	if c.Fetch.Workers < 1 {
		return errors.New("fetch.workers must be at least 1")
	}

	switch c.Directory.Type {
	case DirectoryMemory:
	case DirectorySQLite:
		if strings.TrimSpace(c.Directory.SQLitePath) == "" {
			return errors.New("directory.sqlite_path is required for the sqlite directory")
		}
	default:
		return fmt.Errorf("directory.type %q is not one of memory, sqlite", c.Directory.Type)
	}
	if c.Directory.HistorySize < 1 {
		return errors.New("directory.history_size must be at least 1")
	}

	return nil
}
