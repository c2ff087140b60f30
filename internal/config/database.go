package config

import (
	"path/filepath"
	"time"
)

// DatabaseConfig holds SQLite settings for the audit/feedback/backup store
type DatabaseConfig struct {
	DataDir         string        `json:"dataDir"`
	DatabaseName    string        `json:"databaseName"`
	MaxOpenConns    int           `json:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
}

// DefaultDatabaseConfig returns the default database configuration rooted at
// the configured data directory.
func DefaultDatabaseConfig(dataDir string) *DatabaseConfig {
	return &DatabaseConfig{
		DataDir:         filepath.Join(dataDir, "db"),
		DatabaseName:    "kicomport.db",
		MaxOpenConns:    5,
		MaxIdleConns:    3,
		ConnMaxLifetime: 15 * time.Minute,
	}
}
