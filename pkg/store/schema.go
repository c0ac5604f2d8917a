package store

import (
	"context"

	"github.com/geolinks/geolinks/pkg/errors"
)

// schemaDDL creates the two tables and their indexes. PostGIS must be
// installed; the extension statement needs a superuser or an owner with
// the right grants, same as upstream deployments.
var schemaDDL = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis`,

	`CREATE TABLE IF NOT EXISTS links (
		link_id     BIGINT PRIMARY KEY,
		road_name   TEXT,
		length      DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (length >= 0),
		road_type   TEXT,
		speed_limit INTEGER CHECK (speed_limit BETWEEN 0 AND 200),
		geometry    geometry(LineString, 4326)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_link_geometry ON links USING GIST (geometry)`,
	`CREATE INDEX IF NOT EXISTS idx_link_road_name ON links (road_name)`,

	`CREATE TABLE IF NOT EXISTS speed_records (
		id          BIGSERIAL PRIMARY KEY,
		link_id     BIGINT NOT NULL REFERENCES links(link_id) ON DELETE CASCADE,
		"timestamp" TIMESTAMPTZ NOT NULL,
		day_of_week TEXT,
		time_period TEXT,
		speed       DOUBLE PRECISION NOT NULL CHECK (speed >= 0)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_speed_link_id ON speed_records (link_id)`,
	`CREATE INDEX IF NOT EXISTS idx_speed_timestamp ON speed_records ("timestamp")`,
	`CREATE INDEX IF NOT EXISTS idx_speed_day_period ON speed_records (day_of_week, time_period)`,
	`CREATE INDEX IF NOT EXISTS idx_speed_link_day_period ON speed_records (link_id, day_of_week, time_period)`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return errors.Wrap(err, errors.ErrorTypeQuery, "schema creation failed")
		}
	}
	return nil
}
