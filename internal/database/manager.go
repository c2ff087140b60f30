package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"kicomport/internal/config"
	"kicomport/pkg/logger"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver
)

// DatabaseManager owns the SQLite connection backing the audit log,
// feedback counters and backup metadata.
type DatabaseManager interface {
	Initialize() error
	Close() error
	GetDB() *sql.DB
	BeginTransaction() (*sql.Tx, error)
}

// SQLiteManager implements DatabaseManager
type SQLiteManager struct {
	db       *sql.DB
	config   *config.DatabaseConfig
	logger   logger.Logger
	mutex    sync.RWMutex
	migrator *Migrator
}

// NewSQLiteManager creates a SQLite database manager
func NewSQLiteManager(config *config.DatabaseConfig, logger logger.Logger) DatabaseManager {
	return &SQLiteManager{
		config: config,
		logger: logger,
	}
}

// Initialize opens the connection and runs pending migrations
func (m *SQLiteManager) Initialize() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	dbPath := filepath.Join(m.config.DataDir, m.config.DatabaseName)

	if err := os.MkdirAll(m.config.DataDir, 0755); err != nil {
		return err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return err
	}

	db.SetMaxOpenConns(m.config.MaxOpenConns)
	db.SetMaxIdleConns(m.config.MaxIdleConns)
	db.SetConnMaxLifetime(m.config.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return err
	}

	m.db = db

	m.migrator = NewMigrator(m.db, m.logger)
	if err := m.migrator.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	m.logger.Info("database initialized successfully at %s", dbPath)
	return nil
}

// Close closes the database connection
func (m *SQLiteManager) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// GetDB returns the underlying connection
func (m *SQLiteManager) GetDB() *sql.DB {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.db
}

// BeginTransaction starts a transaction
func (m *SQLiteManager) BeginTransaction() (*sql.Tx, error) {
	return m.db.Begin()
}
