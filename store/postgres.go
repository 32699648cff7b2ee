// Package store persists finished batches: the terminal lifecycle state,
// the clearing result, the applied transfer instructions and the
// slashing audit trail.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/flashbots/batchclear/engine"
)

// BatchStore is the persistence interface for finished batches.
type BatchStore interface {
	SaveBatch(ctx context.Context, rec *engine.BatchRecord) error
	LoadBatch(ctx context.Context, batchID uint64) (*engine.BatchRecord, error)
	Close() error
}

// ErrBatchNotFound reports a lookup of a batch that was never archived.
var ErrBatchNotFound = sql.ErrNoRows

// PostgresStore implements BatchStore with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settled_batches (
		batch_id BIGINT PRIMARY KEY,
		phase VARCHAR(16) NOT NULL,
		opened_at TIMESTAMP WITH TIME ZONE,
		record JSONB NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS slashing_audit (
		id BIGSERIAL PRIMARY KEY,
		batch_id BIGINT NOT NULL,
		commitment_id UUID NOT NULL,
		participant VARCHAR(256) NOT NULL,
		event VARCHAR(32) NOT NULL,
		slashed NUMERIC NOT NULL,
		returned NUMERIC NOT NULL,
		occurred_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_batches_phase ON settled_batches(phase);
	CREATE INDEX IF NOT EXISTS idx_audit_batch ON slashing_audit(batch_id);
	CREATE INDEX IF NOT EXISTS idx_audit_participant ON slashing_audit(participant);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveBatch persists a finished batch. Re-archiving a batch replaces the
// stored record, so a settlement retry that re-closes the batch is safe.
func (s *PostgresStore) SaveBatch(ctx context.Context, rec *engine.BatchRecord) error {
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding batch record: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	query := `
	INSERT INTO settled_batches (batch_id, phase, opened_at, record)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (batch_id) DO UPDATE SET
		phase = EXCLUDED.phase,
		record = EXCLUDED.record
	`
	if _, err := tx.ExecContext(ctx, query,
		int64(rec.BatchID),
		rec.State.Phase.String(),
		rec.State.OpenedAt,
		recordJSON,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM slashing_audit WHERE batch_id = $1", int64(rec.BatchID),
	); err != nil {
		return err
	}
	for _, entry := range rec.Audit {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO slashing_audit
				(batch_id, commitment_id, participant, event, slashed, returned, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			int64(entry.BatchID),
			entry.CommitmentID,
			entry.Participant,
			string(entry.Event),
			entry.Slashed,
			entry.Returned,
			entry.At,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadBatch retrieves an archived batch.
func (s *PostgresStore) LoadBatch(ctx context.Context, batchID uint64) (*engine.BatchRecord, error) {
	var recordJSON []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT record FROM settled_batches WHERE batch_id = $1", int64(batchID),
	).Scan(&recordJSON)
	if err != nil {
		return nil, err
	}

	rec := &engine.BatchRecord{}
	if err := json.Unmarshal(recordJSON, rec); err != nil {
		return nil, fmt.Errorf("decoding batch record: %w", err)
	}
	return rec, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
