package config

import (
	"flag"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultServerAddr       = ":8080"
	defaultLogLevel         = "debug"
	defaultGatewayTimeout   = 5 * time.Second
	defaultCacheTTL         = time.Hour
	defaultWorkerInterval   = 30 * time.Second
	defaultWorkerStaleAfter = 10 * time.Minute
)

// Config is global service configuration
type Config struct {
	ServerAddr  string        `mapstructure:"server_addr"`
	DatabaseDSN string        `mapstructure:"database_dsn"`
	LogLevel    string        `mapstructure:"log_level"`
	Gateway     GatewayConfig `mapstructure:"gateway"`
	Redis       RedisConfig   `mapstructure:"redis"`
	Lmstfy      LmstfyConfig  `mapstructure:"lmstfy"`
	Auth        AuthConfig    `mapstructure:"auth"`
	Worker      WorkerConfig  `mapstructure:"worker"`
}

// GatewayConfig is payment gateway client configuration
type GatewayConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	KeyID     string        `mapstructure:"key_id"`
	KeySecret string        `mapstructure:"key_secret"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// RedisConfig is status cache configuration; empty addr disables the cache
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LmstfyConfig is notification queue configuration; empty host disables dispatch
type LmstfyConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Namespace string `mapstructure:"namespace"`
	Token     string `mapstructure:"token"`
	Queue     string `mapstructure:"queue"`
}

// AuthConfig is operator token configuration
type AuthConfig struct {
	TokenKey string `mapstructure:"token_key"`
}

// WorkerConfig is reconcile poller configuration
type WorkerConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

var (
	once      sync.Once
	singleton *Config
	loadErr   error
)

// New returns new Config. It parses command line flags and reads the yaml
// config with environment overrides only once.
func New() (*Config, error) {
	once.Do(func() {
		var configPath string
		flag.StringVar(&configPath, "c", "", "path to yaml config file")
		flag.Parse()

		v := viper.New()
		v.SetDefault("server_addr", defaultServerAddr)
		v.SetDefault("log_level", defaultLogLevel)
		v.SetDefault("gateway.timeout", defaultGatewayTimeout)
		v.SetDefault("redis.ttl", defaultCacheTTL)
		v.SetDefault("lmstfy.queue", "notifications")
		v.SetDefault("worker.interval", defaultWorkerInterval)
		v.SetDefault("worker.stale_after", defaultWorkerStaleAfter)

		// STOREFRONT_DATABASE_DSN overrides database_dsn, and so on
		v.SetEnvPrefix("STOREFRONT")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		if configPath != "" {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				loadErr = fmt.Errorf("read config failed: %w", err)
				return
			}
		}

		cfg := Config{}
		if err := v.Unmarshal(&cfg); err != nil {
			loadErr = fmt.Errorf("unmarshal config failed: %w", err)
			return
		}

		singleton = &cfg
	})

	return singleton, loadErr
}

// Validate checks required configuration values
func (c *Config) Validate() error {
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database_dsn is required")
	}
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required")
	}
	if c.Gateway.KeyID == "" || c.Gateway.KeySecret == "" {
		return fmt.Errorf("gateway.key_id and gateway.key_secret are required")
	}
	if c.Auth.TokenKey == "" {
		return fmt.Errorf("auth.token_key is required")
	}
	return nil
}
