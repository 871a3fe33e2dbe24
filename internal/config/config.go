// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Battle   BattleConfig   `mapstructure:"battle"`
	Streak   StreakConfig   `mapstructure:"streak"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// Timezone names the location used for calendar-day math, e.g.
	// "Local" or "Asia/Taipei".
	Timezone string `mapstructure:"timezone"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// BattleConfig holds streak battle scoring configuration.
type BattleConfig struct {
	// CompletionPoints are awarded for each completed day.
	CompletionPoints int `mapstructure:"completion_points"`
	// DisplayBonus is shown (never persisted) when a participant has
	// completed today and their opponent has not.
	DisplayBonus int `mapstructure:"display_bonus"`
	// DefaultDuration is the battle length in days when the creator
	// does not choose one.
	DefaultDuration int `mapstructure:"default_duration"`
	// LockTimeout bounds how long a streak update waits for the
	// participant lock before giving up.
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// StreakConfig holds streak calculation configuration.
type StreakConfig struct {
	// MaxLookback caps the backward walk of the current-streak
	// calculation so it terminates even on corrupt history.
	MaxLookback int `mapstructure:"max_lookback"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Location resolves the configured timezone.
func (s *ServerConfig) Location() (*time.Location, error) {
	if s.Timezone == "" || strings.EqualFold(s.Timezone, "Local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Enable environment variable override
	// e.g. SERVER_ADDR, DATABASE_HOST, BATTLE_COMPLETION_POINTS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional - env vars can provide all config)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.timezone", "Local")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "rehabit")
	v.SetDefault("database.name", "rehabit")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Battle defaults
	v.SetDefault("battle.completion_points", 10)
	v.SetDefault("battle.display_bonus", 5)
	v.SetDefault("battle.default_duration", 7)
	v.SetDefault("battle.lock_timeout", "5s")

	// Streak defaults
	v.SetDefault("streak.max_lookback", 1000)
}
