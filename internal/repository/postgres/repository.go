// Package postgres provides the Postgres-backed record repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/licitatech/pncp-harvester/internal/pncp"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool behind the repository.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Repository persists canonical records keyed by their natural id. The full
// record travels as a JSONB payload next to the columns the engine and the
// dashboard query directly.
type Repository struct {
	pool  dbPool
	table string
}

// New creates a Repository with its own connection pool.
func New(ctx context.Context, cfg Config) (*Repository, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "editais_completos"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Repository{pool: pool, table: table}, nil
}

// NewWithPool constructs a Repository from an existing pool (primarily for
// testing).
func NewWithPool(pool dbPool, table string) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "editais_completos"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Repository{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (r *Repository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

// FindByNaturalID returns the stored slice of a record, or (nil, nil) when no
// row exists.
func (r *Repository) FindByNaturalID(ctx context.Context, naturalID string) (*pncp.StoredRecord, error) {
	query := fmt.Sprintf(`SELECT id, natural_id, last_updated_at FROM %s WHERE natural_id = $1`, r.table)

	var stored pncp.StoredRecord
	err := r.pool.QueryRow(ctx, query, naturalID).Scan(&stored.ID, &stored.NaturalID, &stored.LastUpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by natural id: %w", err)
	}
	return &stored, nil
}

// Upsert inserts the record or replaces the existing row with the same
// natural id, returning the row's internal id.
func (r *Repository) Upsert(ctx context.Context, record *pncp.CanonicalRecord) (string, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	natural_id,
	last_updated_at,
	collected_at,
	extraction_method,
	status,
	payload
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)
ON CONFLICT (natural_id) DO UPDATE SET
	last_updated_at = EXCLUDED.last_updated_at,
	collected_at = EXCLUDED.collected_at,
	extraction_method = EXCLUDED.extraction_method,
	status = EXCLUDED.status,
	payload = EXCLUDED.payload
RETURNING id`, r.table)

	var id string
	err = r.pool.QueryRow(ctx, query,
		uuid.NewString(),
		record.NaturalID,
		record.LastUpdatedAt,
		record.CollectedAt,
		string(record.ExtractionMethod),
		record.Status,
		payload,
	).Scan(&id)
	if err != nil {
		return "", classify(fmt.Errorf("upsert record: %w", err))
	}
	return id, nil
}

// UpdateByNaturalID replaces an existing row in place, returning its id.
func (r *Repository) UpdateByNaturalID(ctx context.Context, record *pncp.CanonicalRecord) (string, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	last_updated_at = $2,
	collected_at = $3,
	extraction_method = $4,
	status = $5,
	payload = $6
WHERE natural_id = $1
RETURNING id`, r.table)

	var id string
	err = r.pool.QueryRow(ctx, query,
		record.NaturalID,
		record.LastUpdatedAt,
		record.CollectedAt,
		string(record.ExtractionMethod),
		record.Status,
		payload,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("update record: %w", err)
	}
	return id, nil
}

// CountByStatus groups the stored records by their scraped status label.
func (r *Repository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	query := fmt.Sprintf(`SELECT status, COUNT(*) FROM %s GROUP BY status`, r.table)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

// RecentRecords returns the most recently collected rows, newest first.
func (r *Repository) RecentRecords(ctx context.Context, limit int) ([]pncp.StoredRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`SELECT id, natural_id, last_updated_at FROM %s ORDER BY collected_at DESC LIMIT $1`, r.table)

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("recent records: %w", err)
	}
	defer rows.Close()

	var out []pncp.StoredRecord
	for rows.Next() {
		var stored pncp.StoredRecord
		if err := rows.Scan(&stored.ID, &stored.NaturalID, &stored.LastUpdatedAt); err != nil {
			return nil, fmt.Errorf("scan recent record: %w", err)
		}
		out = append(out, stored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent records: %w", err)
	}
	return out, nil
}

// classify maps a unique-constraint violation onto the engine's sentinel.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", pncp.ErrDuplicateKey, pgErr.Detail)
	}
	return err
}
