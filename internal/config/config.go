package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Billing  BillingConfig  `mapstructure:"billing"`
	Stations StationsConfig `mapstructure:"stations"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Console  ConsoleConfig  `mapstructure:"console"`
	Report   ReportConfig   `mapstructure:"report"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	BindAddress     string   `mapstructure:"bind_address"`
	APIPort         int      `mapstructure:"api_port"`
	MetricsPort     int      `mapstructure:"metrics_port"`
	RateLimit       int      `mapstructure:"rate_limit"`
	RateLimitWindow string   `mapstructure:"rate_limit_window"`
	CORSOrigins     []string `mapstructure:"cors_origins"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Path  string      `mapstructure:"path"`
	Type  string      `mapstructure:"type"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// BillingConfig defines default rates and operator limits
type BillingConfig struct {
	DuoRate             int64  `mapstructure:"duo_rate"`
	QuadRate            int64  `mapstructure:"quad_rate"`
	MinRate             int64  `mapstructure:"min_rate"`
	MaxRate             int64  `mapstructure:"max_rate"`
	MaxExtensionMinutes int    `mapstructure:"max_extension_minutes"`
	Timezone            string `mapstructure:"timezone"`
	Currency            string `mapstructure:"currency"`
}

// StationsConfig defines the stations seeded into an empty store
type StationsConfig struct {
	DefaultCount int    `mapstructure:"default_count"`
	NameFormat   string `mapstructure:"name_format"`
}

// AuthConfig defines operator credentials and token settings
type AuthConfig struct {
	OperatorUsername string `mapstructure:"operator_username"`
	OperatorPassword string `mapstructure:"operator_password"`
	AdminSecret      string `mapstructure:"admin_secret"`
	JWTSecret        string `mapstructure:"jwt_secret"`
	TokenExpiration  string `mapstructure:"token_expiration"`
}

// ConsoleConfig defines the operator console
type ConsoleConfig struct {
	ServerURL         string `mapstructure:"server_url"`
	RequestTimeout    string `mapstructure:"request_timeout"`
	RefreshInterval   string `mapstructure:"refresh_interval"`
	TickInterval      string `mapstructure:"tick_interval"`
	HealthMinInterval string `mapstructure:"health_min_interval"`
	HealthMaxInterval string `mapstructure:"health_max_interval"`
	LocalPath         string `mapstructure:"local_path"`
	Theme             string `mapstructure:"theme"`
	WarningMinutes    int    `mapstructure:"warning_minutes"`
	DangerMinutes     int    `mapstructure:"danger_minutes"`
}

// ReportConfig defines report output
type ReportConfig struct {
	RowsPerPage int    `mapstructure:"rows_per_page"`
	CacheSize   int    `mapstructure:"cache_size"`
	CloseTime   string `mapstructure:"close_time"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("GAMEHALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.api_port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.rate_limit", 300)
	v.SetDefault("server.rate_limit_window", "1m")
	v.SetDefault("server.cors_origins", []string{})

	// Storage defaults
	v.SetDefault("storage.path", "/var/lib/gamehall/gamehall.bolt")
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")

	// Billing defaults
	v.SetDefault("billing.duo_rate", 6000)
	v.SetDefault("billing.quad_rate", 8000)
	v.SetDefault("billing.min_rate", 1000)
	v.SetDefault("billing.max_rate", 50000)
	v.SetDefault("billing.max_extension_minutes", 480)
	v.SetDefault("billing.timezone", "Local")
	v.SetDefault("billing.currency", "")

	// Station defaults
	v.SetDefault("stations.default_count", 6)
	v.SetDefault("stations.name_format", "PS4 #%d")

	// Auth defaults
	v.SetDefault("auth.operator_username", "operator")
	v.SetDefault("auth.operator_password", "changeme")
	v.SetDefault("auth.admin_secret", "admin-changeme")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_expiration", "12h")

	// Console defaults
	v.SetDefault("console.server_url", "http://127.0.0.1:8080")
	v.SetDefault("console.request_timeout", "10s")
	v.SetDefault("console.refresh_interval", "30s")
	v.SetDefault("console.tick_interval", "1s")
	v.SetDefault("console.health_min_interval", "2s")
	v.SetDefault("console.health_max_interval", "1m")
	v.SetDefault("console.local_path", "/var/lib/gamehall/console.bolt")
	v.SetDefault("console.theme", "light")
	v.SetDefault("console.warning_minutes", 5)
	v.SetDefault("console.danger_minutes", 1)

	// Report defaults
	v.SetDefault("report.rows_per_page", 25)
	v.SetDefault("report.cache_size", 64)
	v.SetDefault("report.close_time", "00:05")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.APIPort <= 0 || cfg.Server.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", cfg.Server.APIPort)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "bolt"
	}
	switch cfg.Storage.Type {
	case "bolt":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	if cfg.Billing.MinRate <= 0 || cfg.Billing.MaxRate < cfg.Billing.MinRate {
		return fmt.Errorf("invalid rate bounds: [%d, %d]", cfg.Billing.MinRate, cfg.Billing.MaxRate)
	}
	for name, rate := range map[string]int64{"duo": cfg.Billing.DuoRate, "quad": cfg.Billing.QuadRate} {
		if rate <= 0 {
			return fmt.Errorf("invalid %s rate: %d", name, rate)
		}
	}
	if cfg.Billing.MaxExtensionMinutes <= 0 {
		return fmt.Errorf("invalid max extension: %d minutes", cfg.Billing.MaxExtensionMinutes)
	}
	if _, err := time.LoadLocation(cfg.Billing.Timezone); err != nil {
		return fmt.Errorf("invalid billing timezone %q: %w", cfg.Billing.Timezone, err)
	}

	if cfg.Stations.DefaultCount < 0 {
		return fmt.Errorf("invalid default station count: %d", cfg.Stations.DefaultCount)
	}
	if !strings.Contains(cfg.Stations.NameFormat, "%d") {
		return fmt.Errorf("station name format must contain %%d: %q", cfg.Stations.NameFormat)
	}

	if cfg.Auth.OperatorUsername == "" || cfg.Auth.OperatorPassword == "" {
		return fmt.Errorf("operator credentials are required")
	}
	if cfg.Auth.AdminSecret == "" {
		return fmt.Errorf("admin secret is required")
	}
	if cfg.Auth.AdminSecret == cfg.Auth.OperatorPassword {
		return fmt.Errorf("admin secret must differ from the operator password")
	}

	switch cfg.Console.Theme {
	case "", "light", "dark":
	default:
		return fmt.Errorf("invalid console theme: %s", cfg.Console.Theme)
	}

	if cfg.Report.CloseTime != "" {
		if _, err := time.Parse("15:04", cfg.Report.CloseTime); err != nil {
			return fmt.Errorf("invalid report close time %q (must be HH:MM)", cfg.Report.CloseTime)
		}
	}
	if cfg.Report.RowsPerPage <= 0 {
		cfg.Report.RowsPerPage = 25
	}

	return nil
}

// Location returns the time zone that bounds a business day.
func (c BillingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ParseDuration parses a duration string, returning fallback on error
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Keys returns every configuration key known to the defaults.
func Keys() []string {
	v := viper.New()
	setDefaults(v)
	return v.AllKeys()
}

// Defaults returns the configuration built from defaults alone.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}
