// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS routing_entries (
			asset VARCHAR(128) PRIMARY KEY,
			active_backend VARCHAR(32) NOT NULL,
			supported BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS backend_positions (
			asset VARCHAR(128) NOT NULL,
			backend VARCHAR(32) NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT FALSE,
			principal NUMERIC(40, 0) NOT NULL,
			cumulative_deposited NUMERIC(40, 0) NOT NULL,
			cumulative_withdrawn NUMERIC(40, 0) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (asset, backend)
		);

		CREATE TABLE IF NOT EXISTS operation_receipts (
			receipt_id SERIAL PRIMARY KEY,
			op_id VARCHAR(64) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			caller VARCHAR(128) NOT NULL,
			asset VARCHAR(128) NOT NULL,
			amount NUMERIC(40, 0) NOT NULL,
			shares NUMERIC(40, 0) NOT NULL,
			usd_value NUMERIC(40, 0) NOT NULL,
			share_price NUMERIC(40, 0) NOT NULL,
			success BOOLEAN NOT NULL,
			message TEXT,
			receipt_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_operation_receipts_timestamp ON operation_receipts(receipt_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_operation_receipts_asset ON operation_receipts(asset);
		CREATE INDEX IF NOT EXISTS idx_operation_receipts_kind ON operation_receipts(kind);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
