package main

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// serverConfig holds the demo server settings loaded from the environment.
type serverConfig struct {
	Addr              string        `mapstructure:"ROLLCALL_ADDR"`
	TrustProxy        bool          `mapstructure:"ROLLCALL_TRUST_PROXY"`
	RotationInterval  time.Duration `mapstructure:"ROLLCALL_ROTATION_INTERVAL"`
	TokenTTL          time.Duration `mapstructure:"ROLLCALL_TOKEN_TTL"`
	SweepInterval     time.Duration `mapstructure:"ROLLCALL_SWEEP_INTERVAL"`
	Retention         time.Duration `mapstructure:"ROLLCALL_RETENTION"`
	NetworkMismatchKM float64       `mapstructure:"ROLLCALL_NETWORK_MISMATCH_KM"`
	ArchivePath       string        `mapstructure:"ROLLCALL_ARCHIVE_PATH"`
	MySQLDSN          string        `mapstructure:"ROLLCALL_MYSQL_DSN"`
	RedisAddr         string        `mapstructure:"ROLLCALL_REDIS_ADDR"`
	RedisPassword     string        `mapstructure:"ROLLCALL_REDIS_PASSWORD"`
	GeoIPPath         string        `mapstructure:"ROLLCALL_GEOIP_PATH"`
	LogLevel          string        `mapstructure:"ROLLCALL_LOG_LEVEL"`
}

// loadConfig reads .env (if present), then the environment. Env vars override .env.
func loadConfig() (*serverConfig, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("ROLLCALL_ADDR", ":8080")
	v.SetDefault("ROLLCALL_TRUST_PROXY", false)
	v.SetDefault("ROLLCALL_ROTATION_INTERVAL", "10s")
	v.SetDefault("ROLLCALL_TOKEN_TTL", "15s")
	v.SetDefault("ROLLCALL_SWEEP_INTERVAL", "1m")
	v.SetDefault("ROLLCALL_RETENTION", "30m")
	v.SetDefault("ROLLCALL_NETWORK_MISMATCH_KM", 0)
	v.SetDefault("ROLLCALL_ARCHIVE_PATH", "rollcall.db")
	v.SetDefault("ROLLCALL_MYSQL_DSN", "")
	v.SetDefault("ROLLCALL_REDIS_ADDR", "")
	v.SetDefault("ROLLCALL_REDIS_PASSWORD", "")
	v.SetDefault("ROLLCALL_GEOIP_PATH", "")
	v.SetDefault("ROLLCALL_LOG_LEVEL", "info")

	var cfg serverConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Addr == "" {
		return nil, errors.New("config: ROLLCALL_ADDR must be set")
	}
	if cfg.TokenTTL < cfg.RotationInterval {
		return nil, errors.New("config: ROLLCALL_TOKEN_TTL must be at least ROLLCALL_ROTATION_INTERVAL")
	}

	return &cfg, nil
}
