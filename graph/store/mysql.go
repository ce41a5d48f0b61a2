package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store.
//
// Designed for:
//   - Several agentpipe servers sharing one task store
//   - Audit trails that outlive the process
//
// Content columns are LONGTEXT rather than JSON: MySQL normalizes JSON
// columns, and trace payloads must come back byte-for-byte.
type MySQLStore struct {
	*sqlStore
}

// NewMySQLStore connects to dsn and creates the schema if needed.
//
// The DSN format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
//
// Example:
//
//	user:password@tcp(127.0.0.1:3306)/agentpipe
//
// Security Warning:
//
//	NEVER hardcode credentials. Pass the DSN through STORE_DSN.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)                  // Maximum open connections
	db.SetMaxIdleConns(5)                   // Keep idle connections for reuse
	db.SetConnMaxLifetime(5 * time.Minute)  // Max connection lifetime (prevent stale connections)
	db.SetConnMaxIdleTime(10 * time.Minute) // Max idle time before closing

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	m := &MySQLStore{
		sqlStore: &sqlStore{
			db: db,
			upsertTask: `
				INSERT INTO tasks (task_id, status, archived, data, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON DUPLICATE KEY UPDATE
					status = VALUES(status),
					archived = VALUES(archived),
					data = VALUES(data),
					updated_at = VALUES(updated_at)
			`,
			now: time.Now,
		},
	}

	if err := m.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return m, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	return execAll(ctx, m.db, []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			task_id VARCHAR(255) NOT NULL PRIMARY KEY,
			status VARCHAR(32) NOT NULL,
			archived BOOLEAN NOT NULL DEFAULT FALSE,
			data LONGTEXT NOT NULL,
			updated_at VARCHAR(40) NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS decisions (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			timestamp VARCHAR(40) NOT NULL,
			task_id VARCHAR(255) NOT NULL,
			action_type VARCHAR(64) NOT NULL,
			content LONGTEXT NOT NULL,
			status VARCHAR(64) NOT NULL,
			INDEX idx_decisions_task_action (task_id, action_type, id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS tool_calls (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			decision_id BIGINT NOT NULL,
			tool_name VARCHAR(255) NOT NULL,
			params LONGTEXT NOT NULL,
			result LONGTEXT NOT NULL,
			timestamp VARCHAR(40) NOT NULL,
			FOREIGN KEY (decision_id) REFERENCES decisions(id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS validations (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			decision_id BIGINT NOT NULL,
			validator_type VARCHAR(64) NOT NULL,
			result VARCHAR(64) NOT NULL,
			notes LONGTEXT NOT NULL,
			FOREIGN KEY (decision_id) REFERENCES decisions(id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	})
}

// Stats returns database connection pool statistics.
func (m *MySQLStore) Stats() sql.DBStats {
	return m.db.Stats()
}
