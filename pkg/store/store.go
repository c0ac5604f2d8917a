// Package store owns all PostgreSQL/PostGIS access for the pipeline: the
// connection pool, schema management, the in-memory link id set, and the
// per-chunk bulk write paths used by the chunked loader.
package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geolinks/geolinks/pkg/config"
	"github.com/geolinks/geolinks/pkg/errors"
)

// Store wraps a pgx pool with the pipeline's database operations. One
// Store is created per run; during ingestion it has no concurrent users.
type Store struct {
	pool *pgxpool.Pool
}

// Connect creates a connection pool against the configured database and
// verifies it with a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse database DSN")
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "database unreachable")
	}

	return &Store{pool: pool}, nil
}

// Pool exposes the underlying pool for read-only collaborators (the
// integrity validator and the aggregate queries).
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// LinkIDSet loads every ingested link id into a lookup set. The set is
// bounded by the number of distinct links (~100K), which is a deliberate
// scale assumption: ids only, never full rows, held wholly in memory for
// the speed-record phase.
func (s *Store) LinkIDSet(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT link_id FROM links`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to load link ids")
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to scan link id")
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "error iterating link ids")
	}

	return ids, nil
}

// Counts returns the stored row counts of both tables.
func (s *Store) Counts(ctx context.Context) (links, speeds int64, err error) {
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM links`).Scan(&links); err != nil {
		return 0, 0, errors.Wrap(err, errors.ErrorTypeQuery, "failed to count links")
	}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM speed_records`).Scan(&speeds); err != nil {
		return 0, 0, errors.Wrap(err, errors.ErrorTypeQuery, "failed to count speed records")
	}
	return links, speeds, nil
}

// TruncateAll clears both tables, speed records first for the foreign
// key. Used for administrative re-runs; re-ingesting without it would
// duplicate speed records.
func (s *Store) TruncateAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM speed_records`); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to clear speed_records")
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM links`); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to clear links")
	}
	return nil
}

// DeleteLink removes one link by id; its speed records go with it via the
// ON DELETE CASCADE constraint. This is the only mutation path outside
// bulk ingestion.
func (s *Store) DeleteLink(ctx context.Context, linkID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM links WHERE link_id = $1`, linkID)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeQuery, "failed to delete link")
	}
	return tag.RowsAffected() > 0, nil
}
