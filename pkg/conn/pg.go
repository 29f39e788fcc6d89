// Package conn opens database connections for the tick archive.
package conn

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PostgresOption configures the archive connection.
type PostgresOption struct {
	// DSN is a libpq keyword/value or URL connection string.
	DSN string
	// Quiet drops gorm's query logging. Replay jobs stream millions of
	// rows and the default logger drowns everything else out.
	Quiet bool
}

// NewPostgres opens a PostgreSQL connection pool.
func NewPostgres(opt PostgresOption) (*gorm.DB, error) {
	if opt.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is empty")
	}

	cfg := &gorm.Config{}
	if opt.Quiet {
		cfg.Logger = logger.Discard
	}

	db, err := gorm.Open(postgres.Open(opt.DSN), cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// ClosePostgres closes the underlying connection pool.
func ClosePostgres(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
