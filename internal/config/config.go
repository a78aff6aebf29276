package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	DNS     DNSConfig     `mapstructure:"dns"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
	Policy  PolicyConfig  `mapstructure:"policy"`
	Usage   UsageConfig   `mapstructure:"usage"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	BindAddress  string `mapstructure:"bind_address"`
	HTTPPort     int    `mapstructure:"http_port"`
	DNSEnabled   bool   `mapstructure:"dns_enabled"`
	DNSPort      int    `mapstructure:"dns_port"`
	DNSEnableUDP bool   `mapstructure:"dns_enable_udp"`
	DNSEnableTCP bool   `mapstructure:"dns_enable_tcp"`
	MetricsPort  int    `mapstructure:"metrics_port"`
}

// DNSConfig defines the DNS gateway settings
type DNSConfig struct {
	UpstreamServers []string `mapstructure:"upstream_servers"`
	BlockTTL        uint32   `mapstructure:"block_ttl"`
	BypassTTLCap    uint32   `mapstructure:"bypass_ttl_cap"`
	UpstreamTimeout string   `mapstructure:"upstream_timeout"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type      string      `mapstructure:"type"`
	Path      string      `mapstructure:"path"`
	Versioned bool        `mapstructure:"versioned"`
	Redis     RedisConfig `mapstructure:"redis"`
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
	KeyPrefix    string `mapstructure:"key_prefix"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text or auto
}

// PolicyConfig defines the enforcement policy location
type PolicyConfig struct {
	Dir string `mapstructure:"dir"` // optional extra *.rego modules
}

// UsageConfig defines quota and session settings
type UsageConfig struct {
	Timezone           string `mapstructure:"timezone"`
	NormalizeCacheSize int    `mapstructure:"normalize_cache_size"`
	AutoEndSessions    bool   `mapstructure:"auto_end_sessions"`
	TimerInterval      string `mapstructure:"timer_interval"`
}

// Location resolves the configured timezone. Empty means the process local zone.
func (u UsageConfig) Location() (*time.Location, error) {
	if u.Timezone == "" || strings.EqualFold(u.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(u.Timezone)
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("SITEBUDGET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file: defaults and environment only
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

// Defaults returns a viper instance populated only with default values.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "127.0.0.1")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.dns_enabled", false)
	v.SetDefault("server.dns_port", 5353)
	v.SetDefault("server.dns_enable_udp", true)
	v.SetDefault("server.dns_enable_tcp", true)
	v.SetDefault("server.metrics_port", 9090)

	// DNS defaults
	v.SetDefault("dns.upstream_servers", []string{"1.1.1.1:53", "8.8.8.8:53"})
	v.SetDefault("dns.block_ttl", 60)
	v.SetDefault("dns.bypass_ttl_cap", 300)
	v.SetDefault("dns.upstream_timeout", "5s")

	// Storage defaults
	v.SetDefault("storage.type", "file")
	v.SetDefault("storage.path", "/var/lib/sitebudget/quotas.json")
	v.SetDefault("storage.versioned", false)
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")
	v.SetDefault("storage.redis.key_prefix", "sitebudget")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "auto")

	// Policy defaults
	v.SetDefault("policy.dir", "")

	// Usage defaults
	v.SetDefault("usage.timezone", "")
	v.SetDefault("usage.normalize_cache_size", 512)
	v.SetDefault("usage.auto_end_sessions", true)
	v.SetDefault("usage.timer_interval", "15s")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}
	if cfg.Server.DNSEnabled {
		if cfg.Server.DNSPort <= 0 || cfg.Server.DNSPort > 65535 {
			return fmt.Errorf("invalid DNS port: %d", cfg.Server.DNSPort)
		}
		if len(cfg.DNS.UpstreamServers) == 0 {
			return fmt.Errorf("at least one upstream DNS server is required")
		}
	}

	switch cfg.Storage.Type {
	case "", "file", "sqlite":
		if cfg.Storage.Type == "" {
			cfg.Storage.Type = "file"
		}
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required for %s storage", cfg.Storage.Type)
		}
		storageDir := filepath.Dir(cfg.Storage.Path)
		if err := os.MkdirAll(storageDir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required for redis storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s (must be file, redis or sqlite)", cfg.Storage.Type)
	}

	switch cfg.Logging.Format {
	case "", "json", "text", "auto":
	default:
		return fmt.Errorf("invalid logging format: %s (must be json, text or auto)", cfg.Logging.Format)
	}

	if _, err := cfg.Usage.Location(); err != nil {
		return fmt.Errorf("invalid usage.timezone %q: %w", cfg.Usage.Timezone, err)
	}
	if cfg.Usage.NormalizeCacheSize <= 0 {
		return fmt.Errorf("usage.normalize_cache_size must be positive")
	}
	if _, err := time.ParseDuration(cfg.Usage.TimerInterval); err != nil {
		return fmt.Errorf("invalid usage.timer_interval: %w", err)
	}

	return nil
}
