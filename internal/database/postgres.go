// Package database provides the storage layers behind the gateway:
// credential session stores (in-memory by default, Redis opt-in) and the
// opt-in PostgreSQL activity log.
//
// Credential stores only ever see sealed credential blobs; the key that
// opens them lives in the services layer.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ieraasyl/SatelliteFinder/internal/models"
	"github.com/ieraasyl/SatelliteFinder/pkg/config"
	"github.com/ieraasyl/SatelliteFinder/pkg/utils"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// ActivityMigration creates the activity log table. It is idempotent and
// run on every startup when the activity log is enabled.
const ActivityMigration = `
	CREATE TABLE IF NOT EXISTS activity_log (
		id UUID PRIMARY KEY,
		request_id VARCHAR(64),
		operation VARCHAR(16) NOT NULL,
		username VARCHAR(255) NOT NULL,
		target TEXT,
		outcome VARCHAR(32) NOT NULL,
		status_code INTEGER NOT NULL,
		bytes BIGINT NOT NULL DEFAULT 0,
		duration_ms BIGINT NOT NULL,
		client_ip VARCHAR(64),
		device_info VARCHAR(255),
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_activity_log_username ON activity_log(username);
	CREATE INDEX IF NOT EXISTS idx_activity_log_created_at ON activity_log(created_at);
`

// PostgresDB wraps a PostgreSQL connection pool used for the activity log.
//
// The activity log records who searched and downloaded what and with which
// outcome. It never stores passwords, session identifiers or response bodies.
type PostgresDB struct {
	db *sql.DB // Underlying connection pool
}

// NewPostgresDB creates a new PostgreSQL connection with automatic retry.
// Implements exponential backoff retry logic to handle transient connection
// failures during startup (e.g., database container not ready yet).
//
// Connection pool settings:
//   - MaxOpenConns: From configuration (default: 10)
//   - MaxIdleConns: Half of MaxOpenConns
//   - ConnMaxLifetime: 1 hour
//
// Returns the connected database or an error if all retries fail.
func NewPostgresDB(cfg *config.DatabaseConfig) (*PostgresDB, error) {
	var db *sql.DB
	var connErr error

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	retryConfig := utils.DatabaseRetryConfig()
	retryConfig.InitialDelay = 100 * time.Millisecond
	retryConfig.MaxDelay = 3 * time.Second

	err := utils.Retry(ctx, retryConfig, func() error {
		var err error
		db, err = sql.Open("postgres", cfg.DSN())
		if err != nil {
			connErr = err
			log.Warn().Err(err).Msg("Failed to open database connection, retrying...")
			return err
		}

		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxConns / 2)
		db.SetConnMaxLifetime(time.Hour)

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pingCancel()

		if err := db.PingContext(pingCtx); err != nil {
			connErr = err
			log.Warn().Err(err).Msg("Failed to ping database, retrying...")
			db.Close()
			return err
		}

		return nil
	})

	if err != nil {
		if connErr != nil {
			return nil, fmt.Errorf("failed to connect to database after retries: %w", connErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info().Msg("Successfully connected to PostgreSQL")

	return &PostgresDB{db: db}, nil
}

// NewPostgresDBFromConn wraps an already opened pool. Used by tests with
// go-sqlmock and by callers that manage the pool themselves.
func NewPostgresDBFromConn(db *sql.DB) *PostgresDB {
	return &PostgresDB{db: db}
}

// Close closes the database connection and releases all resources.
func (p *PostgresDB) Close() error {
	return p.db.Close()
}

// Ping checks if the database connection is alive.
// Used by the readiness endpoint.
func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// RunMigrations executes migration SQL statements.
func (p *PostgresDB) RunMigrations(ctx context.Context, migrationSQL string) error {
	_, err := p.db.ExecContext(ctx, migrationSQL)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Msg("Database migrations completed successfully")
	return nil
}

// RecordActivity inserts one activity log entry. A missing ID or timestamp
// is filled in.
func (p *PostgresDB) RecordActivity(ctx context.Context, activity *models.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO activity_log
			(id, request_id, operation, username, target, outcome, status_code, bytes, duration_ms, client_ip, device_info, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := p.db.ExecContext(ctx, query,
		activity.ID,
		activity.RequestID,
		activity.Operation,
		activity.Username,
		activity.Target,
		activity.Outcome,
		activity.StatusCode,
		activity.Bytes,
		activity.Duration.Milliseconds(),
		activity.ClientIP,
		activity.DeviceInfo,
		activity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// ListActivity returns the most recent activity entries of a user, newest first.
func (p *PostgresDB) ListActivity(ctx context.Context, username string, limit int) ([]*models.Activity, error) {
	query := `
		SELECT id, request_id, operation, username, target, outcome, status_code, bytes, duration_ms, client_ip, device_info, created_at
		FROM activity_log
		WHERE username = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := p.db.QueryContext(ctx, query, username, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var entries []*models.Activity
	for rows.Next() {
		var (
			a          models.Activity
			durationMS int64
		)
		if err := rows.Scan(
			&a.ID, &a.RequestID, &a.Operation, &a.Username, &a.Target, &a.Outcome,
			&a.StatusCode, &a.Bytes, &durationMS, &a.ClientIP, &a.DeviceInfo, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity: %w", err)
	}

	return entries, nil
}
