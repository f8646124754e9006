// Package database defines the database connection abstraction of the batch engine and the
// configuration of named connections (the entries under surfin.database).
package database

import (
	"fmt"

	configbinder "github.com/tigerroll/communes/pkg/batch/support/util/configbinder"
)

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds the settings of one named connection.
type DatabaseConfig struct {
	Type     string     `yaml:"type"`     // "sqlite", "mysql" or "postgres"
	Host     string     `yaml:"host"`     // ignored by sqlite
	Port     int        `yaml:"port"`     // ignored by sqlite
	Database string     `yaml:"database"` // database name, or the file path for sqlite
	User     string     `yaml:"user"`
	Password string     `yaml:"password"`
	Sslmode  string     `yaml:"sslmode"` // postgres only
	Pool     PoolConfig `yaml:"pool"`
}

// DecodeDatabaseConfig binds the raw configuration entry name from configs.
func DecodeDatabaseConfig(configs map[string]interface{}, name string) (DatabaseConfig, error) {
	var cfg DatabaseConfig
	raw, ok := configs[name]
	if !ok {
		return cfg, fmt.Errorf("database configuration '%s' not found in surfin.database", name)
	}
	props, ok := raw.(map[string]interface{})
	if !ok {
		return cfg, fmt.Errorf("database configuration '%s' is not a mapping (got %T)", name, raw)
	}
	if err := configbinder.BindProperties(props, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode database config for '%s': %w", name, err)
	}
	if cfg.Type == "" {
		return cfg, fmt.Errorf("database configuration '%s' has no type", name)
	}
	return cfg, nil
}
