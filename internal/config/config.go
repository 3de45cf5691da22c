package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	DB     DBConfig     `yaml:"db"`
	Log    LogConfig    `yaml:"log"`
	Cache  CacheConfig  `yaml:"cache"`
	Store  StoreConfig  `yaml:"store"`
	OTP    OTPConfig    `yaml:"otp"`
	Codes  CodesConfig  `yaml:"codes"`
	Notify NotifyConfig `yaml:"notify"`
	Auth   AuthConfig   `yaml:"auth"`
	MCP    MCPConfig    `yaml:"mcp"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DBConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Path   string `yaml:"path"`
}

type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type StoreConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type OTPConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	MaxAttempts int           `yaml:"max_attempts"`
	HashCost    int           `yaml:"hash_cost"`
}

type CodesConfig struct {
	Length      int `yaml:"length"`
	MaxAttempts int `yaml:"max_attempts"`
}

type NotifyConfig struct {
	QueueSize      int           `yaml:"queue_size"`
	Workers        int           `yaml:"workers"`
	DeliverTimeout time.Duration `yaml:"deliver_timeout"`
	WebhookURL     string        `yaml:"webhook_url"`
	WebhookSecret  string        `yaml:"webhook_secret"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// MCPConfig selects how the admin tool server is exposed: "off", "stdio" or "http".
// Over HTTP, only bearer tokens whose subject is Operator may call tools.
type MCPConfig struct {
	Mode     string `yaml:"mode"`
	Operator string `yaml:"operator"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		DB: DBConfig{
			Driver: "sqlite",
			DSN:    "scanback.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Cache: CacheConfig{
			TTL:           10 * time.Minute,
			SweepInterval: time.Minute,
		},
		Store: StoreConfig{
			Timeout: 3 * time.Second,
		},
		OTP: OTPConfig{
			TTL:         10 * time.Minute,
			MaxAttempts: 5,
			HashCost:    10,
		},
		Codes: CodesConfig{
			Length:      10,
			MaxAttempts: 5,
		},
		Notify: NotifyConfig{
			QueueSize:      256,
			Workers:        2,
			DeliverTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			Issuer: "scanback",
		},
		MCP: MCPConfig{
			Mode:     "http",
			Operator: "admin",
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
// SCANBACK_* variables, including ones set by a local .env file, override the file.
func Load() (Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if path := os.Getenv("SCANBACK_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	switch strings.ToLower(c.DB.Driver) {
	case "sqlite", "postgres", "pgx":
	default:
		return fmt.Errorf("unsupported db driver %q", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return errors.New("db dsn is required")
	}
	switch c.MCP.Mode {
	case "off", "stdio", "http":
	default:
		return fmt.Errorf("unsupported mcp mode %q", c.MCP.Mode)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Host, "SCANBACK_SERVER_HOST")
	setString(&cfg.DB.Driver, "SCANBACK_DB_DRIVER")
	setString(&cfg.DB.DSN, "SCANBACK_DB_DSN")
	setString(&cfg.Log.Level, "SCANBACK_LOG_LEVEL")
	setString(&cfg.Log.Format, "SCANBACK_LOG_FORMAT")
	setString(&cfg.Log.Path, "SCANBACK_LOG_PATH")
	setString(&cfg.Notify.WebhookURL, "SCANBACK_NOTIFY_WEBHOOK_URL")
	setString(&cfg.Notify.WebhookSecret, "SCANBACK_NOTIFY_WEBHOOK_SECRET")
	setString(&cfg.Auth.JWTSecret, "SCANBACK_AUTH_JWT_SECRET")
	setString(&cfg.Auth.Issuer, "SCANBACK_AUTH_ISSUER")
	setString(&cfg.MCP.Mode, "SCANBACK_MCP_MODE")
	setString(&cfg.MCP.Operator, "SCANBACK_MCP_OPERATOR")

	for _, v := range []struct {
		dst *int
		key string
	}{
		{&cfg.Server.Port, "SCANBACK_SERVER_PORT"},
		{&cfg.OTP.MaxAttempts, "SCANBACK_OTP_MAX_ATTEMPTS"},
		{&cfg.OTP.HashCost, "SCANBACK_OTP_HASH_COST"},
		{&cfg.Codes.Length, "SCANBACK_CODES_LENGTH"},
		{&cfg.Codes.MaxAttempts, "SCANBACK_CODES_MAX_ATTEMPTS"},
		{&cfg.Notify.QueueSize, "SCANBACK_NOTIFY_QUEUE_SIZE"},
		{&cfg.Notify.Workers, "SCANBACK_NOTIFY_WORKERS"},
	} {
		if err := setInt(v.dst, v.key); err != nil {
			return err
		}
	}

	for _, v := range []struct {
		dst *time.Duration
		key string
	}{
		{&cfg.Server.ShutdownTimeout, "SCANBACK_SERVER_SHUTDOWN_TIMEOUT"},
		{&cfg.Cache.TTL, "SCANBACK_CACHE_TTL"},
		{&cfg.Cache.SweepInterval, "SCANBACK_CACHE_SWEEP_INTERVAL"},
		{&cfg.Store.Timeout, "SCANBACK_STORE_TIMEOUT"},
		{&cfg.OTP.TTL, "SCANBACK_OTP_TTL"},
		{&cfg.Notify.DeliverTimeout, "SCANBACK_NOTIFY_DELIVER_TIMEOUT"},
	} {
		if err := setDuration(v.dst, v.key); err != nil {
			return err
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
