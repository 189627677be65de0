package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/voice-autopilot/internal/types"
)

// PostgresStore persists run records in PostgreSQL. The full record is kept
// as JSONB; patches take a row lock so read-modify-write stays atomic per
// run id even across processes.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// ConnectPostgres establishes a connection pool and ensures the runs table
// exists.
func ConnectPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{pool: pool, now: time.Now}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS autopilot_runs (
			id         TEXT PRIMARY KEY,
			status     TEXT NOT NULL,
			record     JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}
	return nil
}

// Create inserts a fresh run in status created.
func (s *PostgresStore) Create(ctx context.Context, id string, mode types.Mode, rawInput string) (*types.Run, error) {
	now := s.now()
	run := &types.Run{
		ID:        id,
		Mode:      mode,
		RawInput:  rawInput,
		Status:    types.StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}

	record, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO autopilot_runs (id, status, record, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, string(run.Status), record, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// Patch applies a partial update inside a transaction holding the row lock.
func (s *PostgresStore) Patch(ctx context.Context, id string, patch RunPatch) (*types.Run, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var record []byte
	err = tx.QueryRow(ctx,
		`SELECT record FROM autopilot_runs WHERE id = $1 FOR UPDATE`, id,
	).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &RunNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run: %w", err)
	}

	var run types.Run
	if err := json.Unmarshal(record, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", id, err)
	}

	if err := apply(&run, patch, s.now()); err != nil {
		return nil, err
	}

	updated, err := json.Marshal(&run)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE autopilot_runs SET status = $1, record = $2, updated_at = $3 WHERE id = $4`,
		string(run.Status), updated, run.UpdatedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update run: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return &run, nil
}

// Get returns the run or a RunNotFoundError.
func (s *PostgresStore) Get(ctx context.Context, id string) (*types.Run, error) {
	var record []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM autopilot_runs WHERE id = $1`, id,
	).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &RunNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run: %w", err)
	}

	var run types.Run
	if err := json.Unmarshal(record, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", id, err)
	}
	return &run, nil
}
