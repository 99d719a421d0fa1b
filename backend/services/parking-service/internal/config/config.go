package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "autopark/backend/libs/config"
)

// Config defines parking service configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"PARKING_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN     string `yaml:"dsn" env:"PARKING_POSTGRES_DSN"`
		Migrate bool   `yaml:"migrate" env:"PARKING_POSTGRES_MIGRATE"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"PARKING_REDIS_ADDR"`
		Password string `yaml:"password" env:"PARKING_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"PARKING_REDIS_DB"`
	} `yaml:"redis"`
	Locks struct {
		TTL time.Duration `yaml:"ttl" env:"PARKING_LOCK_TTL"`
	} `yaml:"locks"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret" env:"PARKING_JWT_SECRET"`
	} `yaml:"auth"`
	IDs struct {
		Node int64 `yaml:"node" env:"PARKING_SNOWFLAKE_NODE"`
	} `yaml:"ids"`
	Sites struct {
		CacheTTL         time.Duration `yaml:"cacheTTL" env:"PARKING_SITE_CACHE_TTL"`
		GhostAlertWindow time.Duration `yaml:"ghostAlertWindow" env:"PARKING_GHOST_ALERT_WINDOW"`
	} `yaml:"sites"`
	Devices struct {
		Timeout       time.Duration `yaml:"timeout" env:"PARKING_DEVICE_TIMEOUT"`
		DefaultVendor string        `yaml:"defaultVendor" env:"PARKING_DEVICE_DEFAULT_VENDOR"`
		// HTTPVendors is a comma separated list of vendor codes driven over the HTTP controller protocol.
		HTTPVendors string `yaml:"httpVendors" env:"PARKING_DEVICE_HTTP_VENDORS"`
	} `yaml:"devices"`
	Realtime struct {
		PingInterval time.Duration `yaml:"pingInterval" env:"PARKING_WS_PING_INTERVAL"`
		WriteTimeout time.Duration `yaml:"writeTimeout" env:"PARKING_WS_WRITE_TIMEOUT"`
	} `yaml:"realtime"`
}

// Default returns configuration with every optional field set.
func Default() *Config {
	cfg := &Config{}
	cfg.HTTP.Port = "8084"
	cfg.Database.Migrate = true
	cfg.Redis.Addr = "localhost:6379"
	cfg.Locks.TTL = 30 * time.Second
	cfg.IDs.Node = 1
	cfg.Sites.CacheTTL = time.Minute
	cfg.Sites.GhostAlertWindow = time.Minute
	cfg.Devices.Timeout = 5 * time.Second
	cfg.Devices.DefaultVendor = "simulator"
	cfg.Devices.HTTPVendors = "http"
	cfg.Realtime.PingInterval = 30 * time.Second
	cfg.Realtime.WriteTimeout = 10 * time.Second
	return cfg
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("config: database dsn required")
	}
	if strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("config: redis addr required")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("config: jwt secret required")
	}
	if c.IDs.Node < 0 || c.IDs.Node > 1023 {
		return fmt.Errorf("config: snowflake node %d out of range", c.IDs.Node)
	}
	if c.Locks.TTL <= 0 {
		return errors.New("config: lock ttl must be positive")
	}
	return nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8084"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// HTTPVendorCodes splits Devices.HTTPVendors.
func (c *Config) HTTPVendorCodes() []string {
	var codes []string
	for _, code := range strings.Split(c.Devices.HTTPVendors, ",") {
		if code = strings.TrimSpace(code); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}
