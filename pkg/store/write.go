package store

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/geolinks/geolinks/pkg/errors"
	"github.com/geolinks/geolinks/pkg/geometry"
	"github.com/geolinks/geolinks/pkg/models"
)

// linkColumnCount is the number of bound parameters per link row.
const linkColumnCount = 6

// WriteLinks bulk-inserts one chunk of links inside a single transaction.
// Rows are grouped into multi-row INSERT statements of at most batchSize
// rows, queued through one pgx batch, so a 5000-row chunk costs a handful
// of round trips instead of 5000. Duplicate link ids hit ON CONFLICT DO
// NOTHING (first occurrence wins); the returned count is rows actually
// inserted, so callers can account for skipped duplicates.
func (s *Store) WriteLinks(ctx context.Context, links []models.Link, batchSize int) (int64, error) {
	if len(links) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeChunkWrite, "failed to begin link chunk transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	batch := &pgx.Batch{}
	statements := 0

	for start := 0; start < len(links); start += batchSize {
		end := start + batchSize
		if end > len(links) {
			end = len(links)
		}

		sql, args, err := buildLinkInsert(links[start:end])
		if err != nil {
			return 0, err
		}
		batch.Queue(sql, args...)
		statements++
	}

	results := tx.SendBatch(ctx, batch)

	var inserted int64
	for i := 0; i < statements; i++ {
		tag, err := results.Exec()
		if err != nil {
			results.Close() //nolint:errcheck
			return 0, errors.Wrap(err, errors.ErrorTypeChunkWrite, "link bulk insert failed")
		}
		inserted += tag.RowsAffected()
	}
	if err := results.Close(); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeChunkWrite, "link batch close failed")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeChunkWrite, "link chunk commit failed")
	}

	return inserted, nil
}

// buildLinkInsert renders one multi-row insert with the geometry bound as
// WKB through ST_GeomFromWKB, keeping the SRID pinned to 4326 in SQL.
func buildLinkInsert(links []models.Link) (string, []interface{}, error) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO links (link_id, road_name, length, road_type, speed_limit, geometry) VALUES `)

	args := make([]interface{}, 0, len(links)*linkColumnCount)
	for i, link := range links {
		if i > 0 {
			sb.WriteString(",")
		}
		base := i * linkColumnCount
		sb.WriteString("($")
		writeInt(&sb, base+1)
		sb.WriteString(",$")
		writeInt(&sb, base+2)
		sb.WriteString(",$")
		writeInt(&sb, base+3)
		sb.WriteString(",$")
		writeInt(&sb, base+4)
		sb.WriteString(",$")
		writeInt(&sb, base+5)
		sb.WriteString(",ST_GeomFromWKB($")
		writeInt(&sb, base+6)
		sb.WriteString("::bytea,4326))")

		var wkbGeom []byte
		if link.HasGeometry() {
			encoded, err := geometry.MarshalWKB(link.Geometry)
			if err != nil {
				return "", nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode link geometry")
			}
			wkbGeom = encoded
		}

		args = append(args, link.LinkID, link.RoadName, link.Length, link.RoadType, link.SpeedLimit, wkbGeom)
	}

	sb.WriteString(` ON CONFLICT (link_id) DO NOTHING`)
	return sb.String(), args, nil
}

func writeInt(sb *strings.Builder, n int) {
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	sb.Write(buf[i:])
}

// WriteSpeeds bulk-inserts one chunk of speed records inside a single
// transaction using the COPY protocol. Referential validity was already
// established against the link id set, so no conflict handling is needed
// and COPY's throughput wins.
func (s *Store) WriteSpeeds(ctx context.Context, records []models.SpeedRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeChunkWrite, "failed to begin speed chunk transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"speed_records"},
		[]string{"link_id", "timestamp", "day_of_week", "time_period", "speed"},
		pgx.CopyFromSlice(len(records), func(i int) ([]interface{}, error) {
			r := records[i]
			return []interface{}{r.LinkID, r.Timestamp, r.DayOfWeek, r.TimePeriod, r.Speed}, nil
		}),
	)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeChunkWrite, "speed record copy failed")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeChunkWrite, "speed chunk commit failed")
	}

	return copied, nil
}
