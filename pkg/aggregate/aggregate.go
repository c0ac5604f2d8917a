// Package aggregate computes speed summaries over ingested data. The
// heavy lifting stays in SQL; Go only shapes the result rows.
package aggregate

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geolinks/geolinks/pkg/errors"
)

// PeriodStats summarizes speeds for one (day of week, time period) bucket.
type PeriodStats struct {
	DayOfWeek  string  `json:"day_of_week"`
	TimePeriod string  `json:"time_period"`
	Count      int64   `json:"count"`
	MeanSpeed  float64 `json:"mean_speed"`
	MinSpeed   float64 `json:"min_speed"`
	MaxSpeed   float64 `json:"max_speed"`
}

// LinkStats summarizes all speed records of one link.
type LinkStats struct {
	LinkID    int64   `json:"link_id"`
	RoadName  *string `json:"road_name,omitempty"`
	Count     int64   `json:"count"`
	MeanSpeed float64 `json:"mean_speed"`
	MinSpeed  float64 `json:"min_speed"`
	MaxSpeed  float64 `json:"max_speed"`
}

// ByPeriod aggregates speeds across all links per day/period bucket.
func ByPeriod(ctx context.Context, pool *pgxpool.Pool) ([]PeriodStats, error) {
	rows, err := pool.Query(ctx, `
		SELECT day_of_week, time_period, COUNT(*), AVG(speed), MIN(speed), MAX(speed)
		FROM speed_records
		GROUP BY day_of_week, time_period
		ORDER BY day_of_week, time_period`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to aggregate speeds by period")
	}
	return collectPeriods(rows)
}

// ForLink aggregates one link's speeds per day/period bucket.
func ForLink(ctx context.Context, pool *pgxpool.Pool, linkID int64) ([]PeriodStats, error) {
	rows, err := pool.Query(ctx, `
		SELECT day_of_week, time_period, COUNT(*), AVG(speed), MIN(speed), MAX(speed)
		FROM speed_records
		WHERE link_id = $1
		GROUP BY day_of_week, time_period
		ORDER BY day_of_week, time_period`, linkID)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeQuery, "failed to aggregate speeds for link %d", linkID)
	}
	return collectPeriods(rows)
}

func collectPeriods(rows pgx.Rows) ([]PeriodStats, error) {
	defer rows.Close()
	var out []PeriodStats
	for rows.Next() {
		var s PeriodStats
		if err := rows.Scan(&s.DayOfWeek, &s.TimePeriod, &s.Count, &s.MeanSpeed, &s.MinSpeed, &s.MaxSpeed); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to scan period aggregate")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read period aggregates")
	}
	return out, nil
}

// SlowestLinks returns the limit links with the lowest mean speed, ties
// broken by link id for stable output.
func SlowestLinks(ctx context.Context, pool *pgxpool.Pool, limit int) ([]LinkStats, error) {
	rows, err := pool.Query(ctx, `
		SELECT s.link_id, l.road_name, COUNT(*), AVG(s.speed), MIN(s.speed), MAX(s.speed)
		FROM speed_records s
		JOIN links l ON l.link_id = s.link_id
		GROUP BY s.link_id, l.road_name
		ORDER BY AVG(s.speed) ASC, s.link_id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to rank links by mean speed")
	}
	defer rows.Close()
	var out []LinkStats
	for rows.Next() {
		var s LinkStats
		if err := rows.Scan(&s.LinkID, &s.RoadName, &s.Count, &s.MeanSpeed, &s.MinSpeed, &s.MaxSpeed); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to scan link aggregate")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read link aggregates")
	}
	return out, nil
}
