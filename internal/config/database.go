package config

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// SetupDatabase initializes the database connection
func SetupDatabase(cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	// Create tables if they don't exist
	if err := createTables(db, cfg.Credits.GenerationCost); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// createTables creates the necessary tables in the database
func createTables(db *sqlx.DB, defaultGenerationCost int) error {
	// Create users table
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(36) PRIMARY KEY,
			email VARCHAR(255) UNIQUE NOT NULL,
			name VARCHAR(255) NOT NULL,
			password VARCHAR(255) NOT NULL,
			credit_balance INTEGER NOT NULL DEFAULT 0 CHECK (credit_balance >= 0),
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create credit_transactions table (append-only ledger)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS credit_transactions (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			transaction_type VARCHAR(16) NOT NULL,
			amount INTEGER NOT NULL,
			description TEXT NOT NULL,
			related_model VARCHAR(64),
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create jobs table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id VARCHAR(36) PRIMARY KEY,
			task_id VARCHAR(36) UNIQUE NOT NULL,
			user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			job_type VARCHAR(16) NOT NULL,
			status VARCHAR(16) NOT NULL,
			progress INTEGER NOT NULL DEFAULT 0,
			prompt TEXT NOT NULL,
			model VARCHAR(64) NOT NULL,
			credit_cost INTEGER NOT NULL,
			source_image_id VARCHAR(36),
			image_id VARCHAR(36),
			error_message TEXT,
			created_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	// Create ai_models table (catalog + usage statistics)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS ai_models (
			name VARCHAR(64) PRIMARY KEY,
			display_name VARCHAR(128) NOT NULL,
			credit_cost INTEGER NOT NULL,
			usage_count BIGINT NOT NULL DEFAULT 0,
			last_used_at TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	// Create indexes for better performance
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_credit_transactions_user_id ON credit_transactions(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_credit_transactions_user_type ON credit_transactions(user_id, transaction_type)",
		"CREATE INDEX IF NOT EXISTS idx_jobs_user_status ON jobs(user_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at)",
	}

	for _, idx := range indexes {
		_, err = db.Exec(idx)
		if err != nil {
			log.Printf("Warning: Failed to create index: %v", err)
			// Don't return error here, indexes are not critical
		}
	}

	return seedModels(db, defaultGenerationCost)
}

// seedModels inserts the default model catalog entries. flux-pro is the
// default generation model, so its seed cost comes from configuration.
func seedModels(db *sqlx.DB, defaultGenerationCost int) error {
	models := []struct {
		name        string
		displayName string
		cost        int
	}{
		{"flux-schnell", "Flux Schnell", 5},
		{"flux-pro", "Flux Pro", defaultGenerationCost},
		{"sdxl", "Stable Diffusion XL", 8},
	}

	for _, m := range models {
		_, err := db.Exec(`
			INSERT INTO ai_models (name, display_name, credit_cost, usage_count)
			VALUES ($1, $2, $3, 0)
			ON CONFLICT (name) DO NOTHING
		`, m.name, m.displayName, m.cost)
		if err != nil {
			return err
		}
	}

	return nil
}
