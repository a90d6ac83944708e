package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store, for deployments
// where several codecrew processes share run history.
//
// The DSN format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...]
//
// Never hardcode credentials; read the DSN from configuration or the
// environment.
type MySQLStore struct {
	sqlStore
}

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS crew_runs (
			run_id VARCHAR(64) PRIMARY KEY,
			requirement MEDIUMTEXT NOT NULL,
			phase VARCHAR(32) NOT NULL DEFAULT '',
			reason VARCHAR(32) NOT NULL DEFAULT '',
			error TEXT NOT NULL,
			messages INT NOT NULL DEFAULT 0,
			review_retries INT NOT NULL DEFAULT 0,
			max_iterations INT NOT NULL DEFAULT 0,
			started_at BIGINT NOT NULL DEFAULT 0,
			finished_at BIGINT NOT NULL DEFAULT 0,
			INDEX idx_crew_runs_started (started_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS crew_turns (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(64) NOT NULL,
			seq INT NOT NULL,
			source VARCHAR(255) NOT NULL,
			content MEDIUMTEXT NOT NULL,
			input_tokens INT NOT NULL DEFAULT 0,
			output_tokens INT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL DEFAULT 0,
			INDEX idx_crew_turns_run (run_id),
			UNIQUE KEY unique_run_seq (run_id, seq)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	},
	upsertRun: `
		INSERT INTO crew_runs (run_id, requirement, phase, reason, error, messages,
			review_retries, max_iterations, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			requirement = VALUES(requirement),
			phase = VALUES(phase),
			reason = VALUES(reason),
			error = VALUES(error),
			messages = VALUES(messages),
			review_retries = VALUES(review_retries),
			max_iterations = VALUES(max_iterations),
			started_at = VALUES(started_at),
			finished_at = VALUES(finished_at)`,
}

// NewMySQLStore connects to dsn, verifies the connection and creates the
// schema if needed.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore{sqlStore: sqlStore{db: db, dialect: mysqlDialect}}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}
