// Package config provides Viper-based configuration loading for the lobby,
// database, and game server binaries.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LobbyConfig holds lobby server settings.
type LobbyConfig struct {
	// Host is the bind address for the lobby listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the lobby listener.
	Port int `mapstructure:"port"`
	// GameServerAddr is the "host:port" address handed to both room members
	// when the owner starts a match.
	GameServerAddr string `mapstructure:"game_server_addr"`
	// ShutdownGrace is how long a client handler waits for the final exit
	// acknowledgment after pushing a server_shutdown event.
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// Addr returns the "host:port" listen address.
func (l LobbyConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// Store backend identifiers for the database service.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// PostgresConfig holds PostgreSQL connection settings for the postgres store.
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Name, p.SSLMode,
	)
}

// DatabaseConfig holds database service settings.
type DatabaseConfig struct {
	// LobbyAddr is the lobby server address the database service dials.
	LobbyAddr string `mapstructure:"lobby_addr"`
	// Store selects the storage backend: "memory" or "postgres".
	Store string `mapstructure:"store"`
	// SnapshotPath is where the memory store persists its user records.
	SnapshotPath string `mapstructure:"snapshot_path"`
	// Postgres configures the postgres store; ignored for the memory store.
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// GameServerConfig holds game session coordinator settings.
type GameServerConfig struct {
	// Host is the bind address for the match listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the match listener.
	Port int `mapstructure:"port"`
	// TickInterval is the authoritative loop cadence.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// GoalScore is the score a player must reach to win the match.
	GoalScore int `mapstructure:"goal_score"`
	// GravityPresetsPath points at the YAML file of gravity/drop presets.
	GravityPresetsPath string `mapstructure:"gravity_presets_path"`
	// GravityPreset names the preset served to both players.
	GravityPreset string `mapstructure:"gravity_preset"`
}

// Addr returns the "host:port" listen address.
func (g GameServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Lobby      LobbyConfig      `mapstructure:"lobby"`
	Database   DatabaseConfig   `mapstructure:"database"`
	GameServer GameServerConfig `mapstructure:"gameserver"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateLobby(c.Lobby); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateDatabase(c.Database); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGameServer(c.GameServer); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLobby(l LobbyConfig) error {
	var errs []string
	if l.Port < 1 || l.Port > 65535 {
		errs = append(errs, fmt.Sprintf("lobby.port must be 1-65535, got %d", l.Port))
	}
	if l.GameServerAddr == "" {
		errs = append(errs, "lobby.game_server_addr must not be empty")
	}
	if l.ShutdownGrace < 0 {
		errs = append(errs, "lobby.shutdown_grace must not be negative")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.LobbyAddr == "" {
		errs = append(errs, "database.lobby_addr must not be empty")
	}
	switch d.Store {
	case StoreMemory:
		if d.SnapshotPath == "" {
			errs = append(errs, "database.snapshot_path must not be empty for the memory store")
		}
	case StorePostgres:
		if err := validatePostgres(d.Postgres); err != nil {
			errs = append(errs, err.Error())
		}
	default:
		errs = append(errs, fmt.Sprintf("database.store must be one of [memory, postgres], got %q", d.Store))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validatePostgres(p PostgresConfig) error {
	var errs []string
	if p.Host == "" {
		errs = append(errs, "database.postgres.host must not be empty")
	}
	if p.Port < 1 || p.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.postgres.port must be 1-65535, got %d", p.Port))
	}
	if p.User == "" {
		errs = append(errs, "database.postgres.user must not be empty")
	}
	if p.Name == "" {
		errs = append(errs, "database.postgres.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[p.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.postgres.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", p.SSLMode))
	}
	if p.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.postgres.max_conns must be >= 1, got %d", p.MaxConns))
	}
	if p.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.postgres.min_conns must be >= 0, got %d", p.MinConns))
	}
	if p.MinConns > p.MaxConns {
		errs = append(errs, "database.postgres.min_conns must not exceed database.postgres.max_conns")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateGameServer(g GameServerConfig) error {
	var errs []string
	if g.Port < 1 || g.Port > 65535 {
		errs = append(errs, fmt.Sprintf("gameserver.port must be 1-65535, got %d", g.Port))
	}
	if g.TickInterval <= 0 {
		errs = append(errs, "gameserver.tick_interval must be positive")
	}
	if g.GoalScore < 1 {
		errs = append(errs, fmt.Sprintf("gameserver.goal_score must be >= 1, got %d", g.GoalScore))
	}
	if g.GravityPreset == "" {
		errs = append(errs, "gameserver.gravity_preset must not be empty")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment
// variable overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with BLOCKDUEL_ prefix
	v.SetEnvPrefix("BLOCKDUEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("lobby.host", "0.0.0.0")
	v.SetDefault("lobby.port", 21354)
	v.SetDefault("lobby.game_server_addr", "127.0.0.1:22345")
	v.SetDefault("lobby.shutdown_grace", "2s")

	v.SetDefault("database.lobby_addr", "127.0.0.1:21354")
	v.SetDefault("database.store", "memory")
	v.SetDefault("database.snapshot_path", "user_db.json")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "blockduel")
	v.SetDefault("database.postgres.password", "blockduel")
	v.SetDefault("database.postgres.name", "blockduel")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.max_conns", 10)
	v.SetDefault("database.postgres.min_conns", 2)
	v.SetDefault("database.postgres.max_conn_lifetime", "1h")

	v.SetDefault("gameserver.host", "0.0.0.0")
	v.SetDefault("gameserver.port", 22345)
	v.SetDefault("gameserver.tick_interval", "100ms")
	v.SetDefault("gameserver.goal_score", 300)
	v.SetDefault("gameserver.gravity_presets_path", "configs/gravity.yaml")
	v.SetDefault("gameserver.gravity_preset", "standard")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
