// Package config loads the API server's and the state monitor's JSON
// configuration files via spf13/viper, plus a handful of ambient operational
// settings (ports, drain windows) not named by the rucat config schema and
// read from the environment the way this codebase's ambient services
// already are.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// AuthProviderConfig configures the static-credential authenticator. A nil
// *AuthProviderConfig on ServerConfig disables authentication entirely.
type AuthProviderConfig struct {
	Token string `mapstructure:"token"`
}

// SQLiteDatabaseConfig configures the database/sql + modernc.org/sqlite
// backed store.
type SQLiteDatabaseConfig struct {
	URI         string            `mapstructure:"uri"`
	Credentials map[string]string `mapstructure:"credentials"`
}

// DatabaseConfig selects and configures one Engine Store backend. Exactly
// one of Memory or SQLite should be set; Memory takes precedence if both
// are (it is intended for local development only).
type DatabaseConfig struct {
	Memory *struct{}             `mapstructure:"memory"`
	SQLite *SQLiteDatabaseConfig `mapstructure:"sqlite"`
}

// ServerConfig is the API server's config file shape: `{auth_provider,
// database}` per the rucat config schema.
type ServerConfig struct {
	AuthProvider *AuthProviderConfig `mapstructure:"auth_provider"`
	Database     DatabaseConfig      `mapstructure:"database"`

	// Ambient settings not part of the rucat config schema.
	Port              string        `mapstructure:"-"`
	MetricsPort       string        `mapstructure:"-"`
	ShutdownDrainWait time.Duration `mapstructure:"-"`
}

// MonitorConfig is the state monitor's config file shape:
// `{check_interval_secs, database}`.
type MonitorConfig struct {
	CheckIntervalSecs int            `mapstructure:"check_interval_secs"`
	Database          DatabaseConfig `mapstructure:"database"`

	// Ambient settings not part of the rucat config schema.
	MetricsPort string `mapstructure:"-"`
	FanOut      int    `mapstructure:"-"`
}

// LoadServerConfig reads and parses the JSON config file at path, then
// layers in ambient operational settings from the environment.
func LoadServerConfig(path string) (*ServerConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read server config %s: %w", path, err)
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse server config %s: %w", path, err)
	}
	// viper drops empty objects when decoding, so `"memory": {}` would
	// otherwise leave Memory nil.
	if cfg.Database.Memory == nil && v.IsSet("database.memory") {
		cfg.Database.Memory = &struct{}{}
	}

	cfg.Port = GetEnv("PORT", "8080")
	cfg.MetricsPort = GetEnv("METRICS_PORT", "9090")
	cfg.ShutdownDrainWait = GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second)

	return &cfg, nil
}

// LoadMonitorConfig reads and parses the JSON config file at path, then
// layers in ambient operational settings from the environment. Unlike the
// server, the monitor's config file path is fixed by the caller (it is a
// background service; operators don't get to point it elsewhere), per
// original source conventions the rucat state monitor follows.
func LoadMonitorConfig(path string) (*MonitorConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read monitor config %s: %w", path, err)
	}

	var cfg MonitorConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse monitor config %s: %w", path, err)
	}
	if cfg.Database.Memory == nil && v.IsSet("database.memory") {
		cfg.Database.Memory = &struct{}{}
	}
	if cfg.CheckIntervalSecs < 0 {
		return nil, fmt.Errorf("check_interval_secs must be non-negative, got %d", cfg.CheckIntervalSecs)
	}

	cfg.MetricsPort = GetEnv("METRICS_PORT", "9091")
	cfg.FanOut = GetIntEnv("MONITOR_FANOUT", 16)

	return &cfg, nil
}

// DSN returns the data-source name for the configured database, and the
// driver in use ("memory" or "sqlite").
func (d DatabaseConfig) DSN() (driver, dsn string, err error) {
	switch {
	case d.Memory != nil:
		return "memory", "", nil
	case d.SQLite != nil:
		if d.SQLite.URI == "" {
			return "", "", fmt.Errorf("sqlite database config requires a uri")
		}
		return "sqlite", d.SQLite.URI, nil
	default:
		return "", "", fmt.Errorf("database config names no backend (expected \"memory\" or \"sqlite\")")
	}
}
