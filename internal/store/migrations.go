package store

import (
	"fmt"
)

// The DDL below avoids dialect-specific features so the same statements run
// on SQLite, PostgreSQL, and MySQL: VARCHAR ids, inline UNIQUE constraints,
// no server-side defaults for timestamps (the application sets them).
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(36) PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			username VARCHAR(255) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			is_admin BOOLEAN NOT NULL,
			is_active BOOLEAN NOT NULL,
			last_login_at TIMESTAMP NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS invites (
			id VARCHAR(36) PRIMARY KEY,
			code VARCHAR(64) NOT NULL UNIQUE,
			created_by VARCHAR(36) NOT NULL,
			used_by VARCHAR(36) NULL,
			expires_at TIMESTAMP NULL,
			created_at TIMESTAMP NOT NULL,
			used_at TIMESTAMP NULL
		)`,

		`CREATE TABLE IF NOT EXISTS api_keys (
			id VARCHAR(36) PRIMARY KEY,
			key_hash VARCHAR(64) NOT NULL UNIQUE,
			key_prefix VARCHAR(16) NOT NULL,
			name VARCHAR(255) NOT NULL,
			permissions_json TEXT NOT NULL,
			user_id VARCHAR(36) NULL,
			revoked BOOLEAN NOT NULL,
			frozen BOOLEAN NOT NULL,
			expires_at TIMESTAMP NULL,
			created_at TIMESTAMP NOT NULL,
			last_used_at TIMESTAMP NULL
		)`,

		`CREATE TABLE IF NOT EXISTS watch_entries (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(36) NOT NULL,
			title_id VARCHAR(64) NOT NULL,
			media_type VARCHAR(16) NOT NULL,
			season INTEGER NOT NULL,
			episode INTEGER NOT NULL,
			progress_seconds INTEGER NOT NULL,
			finished BOOLEAN NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, title_id, season, episode)
		)`,

		`CREATE TABLE IF NOT EXISTS comments (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(36) NOT NULL,
			title_id VARCHAR(64) NOT NULL,
			body TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS ratings (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(36) NOT NULL,
			title_id VARCHAR(64) NOT NULL,
			score INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, title_id)
		)`,

		`CREATE TABLE IF NOT EXISTS request_logs (
			id VARCHAR(36) PRIMARY KEY,
			request_id VARCHAR(64) NOT NULL,
			method VARCHAR(10) NOT NULL,
			path VARCHAR(512) NOT NULL,
			status INTEGER NOT NULL,
			key_id VARCHAR(36) NULL,
			user_id VARCHAR(36) NULL,
			duration_ms DOUBLE PRECISION NOT NULL,
			ip VARCHAR(64) NOT NULL,
			user_agent VARCHAR(512) NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
