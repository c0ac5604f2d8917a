// Package validate runs post-ingestion integrity checks. Every check is
// read-only: the validator reports, it never repairs.
package validate

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/geolinks/geolinks/pkg/errors"
	"github.com/geolinks/geolinks/pkg/ingest"
	"github.com/geolinks/geolinks/pkg/logger"
)

// avgTolerance is the allowed absolute difference when a stored aggregate
// is recomputed from raw rows.
const avgTolerance = 0.1

// avgSampleLinks bounds how many links the average spot-check recomputes.
const avgSampleLinks = 5

// CheckResult is the outcome of one integrity check.
type CheckResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Skipped bool   `json:"skipped,omitempty"`
	Detail  string `json:"detail"`
}

// Report collects all check outcomes of one validation run.
type Report struct {
	Checks []CheckResult `json:"checks"`
}

// Passed reports whether every non-skipped check passed.
func (r *Report) Passed() bool {
	for _, c := range r.Checks {
		if !c.Skipped && !c.Passed {
			return false
		}
	}
	return true
}

// String renders the report for terminal output.
func (r *Report) String() string {
	var sb strings.Builder
	for _, c := range r.Checks {
		status := "PASS"
		switch {
		case c.Skipped:
			status = "SKIP"
		case !c.Passed:
			status = "FAIL"
		}
		fmt.Fprintf(&sb, "%-4s  %-24s %s\n", status, c.Name, c.Detail)
	}
	if r.Passed() {
		sb.WriteString("integrity verification passed\n")
	} else {
		sb.WriteString("integrity verification FAILED\n")
	}
	return sb.String()
}

// Validator runs the integrity suite against an ingested database.
type Validator struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// New creates a Validator over an open connection pool.
func New(pool *pgxpool.Pool) *Validator {
	return &Validator{pool: pool, log: logger.Get()}
}

// Run executes all checks and returns the report. summary may be nil, in
// which case the row-count reconciliation is skipped. A query failure is
// an error, not a failed check.
func (v *Validator) Run(ctx context.Context, summary *ingest.RunSummary) (*Report, error) {
	report := &Report{}
	checks := []func(context.Context) (CheckResult, error){
		v.checkGeometryValidity,
		v.checkSRID,
		v.checkOrphans,
		func(ctx context.Context) (CheckResult, error) { return v.checkCounts(ctx, summary) },
		v.checkAverages,
	}
	for _, check := range checks {
		result, err := check(ctx)
		if err != nil {
			return nil, err
		}
		report.Checks = append(report.Checks, result)
		v.log.Info("integrity check finished",
			zap.String("check", result.Name),
			zap.Bool("passed", result.Passed),
			zap.Bool("skipped", result.Skipped),
			zap.String("detail", result.Detail))
	}
	return report, nil
}

// checkGeometryValidity finds links whose stored geometry PostGIS
// considers invalid. NULL geometry is legal and not counted.
func (v *Validator) checkGeometryValidity(ctx context.Context) (CheckResult, error) {
	var invalid int64
	err := v.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM links
		WHERE geometry IS NOT NULL AND NOT ST_IsValid(geometry)`).Scan(&invalid)
	if err != nil {
		return CheckResult{}, errors.Wrap(err, errors.ErrorTypeIntegrity, "geometry validity check failed")
	}
	return CheckResult{
		Name:   "geometry_validity",
		Passed: invalid == 0,
		Detail: fmt.Sprintf("%d invalid geometries", invalid),
	}, nil
}

// checkSRID verifies every stored geometry carries SRID 4326 and samples
// offending link ids for the report.
func (v *Validator) checkSRID(ctx context.Context) (CheckResult, error) {
	rows, err := v.pool.Query(ctx, `
		SELECT link_id, ST_SRID(geometry) FROM links
		WHERE geometry IS NOT NULL AND ST_SRID(geometry) <> 4326
		ORDER BY link_id
		LIMIT 10`)
	if err != nil {
		return CheckResult{}, errors.Wrap(err, errors.ErrorTypeIntegrity, "SRID check failed")
	}
	defer rows.Close()

	var offenders []string
	for rows.Next() {
		var id int64
		var srid int
		if err := rows.Scan(&id, &srid); err != nil {
			return CheckResult{}, errors.Wrap(err, errors.ErrorTypeIntegrity, "SRID check failed")
		}
		offenders = append(offenders, fmt.Sprintf("link %d has SRID %d", id, srid))
	}
	if err := rows.Err(); err != nil {
		return CheckResult{}, errors.Wrap(err, errors.ErrorTypeIntegrity, "SRID check failed")
	}

	detail := "all geometries use SRID 4326"
	if len(offenders) > 0 {
		detail = strings.Join(offenders, "; ")
	}
	return CheckResult{
		Name:   "srid_uniformity",
		Passed: len(offenders) == 0,
		Detail: detail,
	}, nil
}

// checkOrphans finds speed records referencing a link that does not
// exist. The foreign key should make this impossible; the check guards
// against the constraint having been dropped or deferred.
func (v *Validator) checkOrphans(ctx context.Context) (CheckResult, error) {
	var orphans int64
	err := v.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM speed_records s
		LEFT JOIN links l ON l.link_id = s.link_id
		WHERE l.link_id IS NULL`).Scan(&orphans)
	if err != nil {
		return CheckResult{}, errors.Wrap(err, errors.ErrorTypeIntegrity, "orphan check failed")
	}
	return CheckResult{
		Name:   "referential_integrity",
		Passed: orphans == 0,
		Detail: fmt.Sprintf("%d orphaned speed records", orphans),
	}, nil
}

// checkCounts reconciles table counts against the run summary's committed
// row counters.
func (v *Validator) checkCounts(ctx context.Context, summary *ingest.RunSummary) (CheckResult, error) {
	if summary == nil {
		return CheckResult{
			Name:    "row_counts",
			Passed:  true,
			Skipped: true,
			Detail:  "no run summary provided",
		}, nil
	}

	var links, speeds int64
	if err := v.pool.QueryRow(ctx, `SELECT COUNT(*) FROM links`).Scan(&links); err != nil {
		return CheckResult{}, errors.Wrap(err, errors.ErrorTypeIntegrity, "row count check failed")
	}
	if err := v.pool.QueryRow(ctx, `SELECT COUNT(*) FROM speed_records`).Scan(&speeds); err != nil {
		return CheckResult{}, errors.Wrap(err, errors.ErrorTypeIntegrity, "row count check failed")
	}

	passed := links == summary.Links.RowsCommitted && speeds == summary.Speeds.RowsCommitted
	return CheckResult{
		Name:   "row_counts",
		Passed: passed,
		Detail: fmt.Sprintf("links %d/%d, speed records %d/%d",
			links, summary.Links.RowsCommitted, speeds, summary.Speeds.RowsCommitted),
	}, nil
}

// checkAverages recomputes the mean speed of a handful of links from raw
// rows and compares it against the SQL aggregate. Disagreement beyond the
// tolerance means rows were corrupted or double-counted on the way in.
func (v *Validator) checkAverages(ctx context.Context) (CheckResult, error) {
	rows, err := v.pool.Query(ctx, `
		SELECT link_id, AVG(speed), COUNT(*)
		FROM speed_records
		GROUP BY link_id
		ORDER BY COUNT(*) DESC, link_id
		LIMIT $1`, avgSampleLinks)
	if err != nil {
		return CheckResult{}, errors.Wrap(err, errors.ErrorTypeIntegrity, "average spot check failed")
	}
	type sample struct {
		linkID int64
		avg    float64
		count  int64
	}
	var samples []sample
	for rows.Next() {
		var s sample
		if err := rows.Scan(&s.linkID, &s.avg, &s.count); err != nil {
			rows.Close()
			return CheckResult{}, errors.Wrap(err, errors.ErrorTypeIntegrity, "average spot check failed")
		}
		samples = append(samples, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return CheckResult{}, errors.Wrap(err, errors.ErrorTypeIntegrity, "average spot check failed")
	}

	if len(samples) == 0 {
		return CheckResult{
			Name:    "average_spot_check",
			Passed:  true,
			Skipped: true,
			Detail:  "no speed records",
		}, nil
	}

	for _, s := range samples {
		recomputed, err := v.recomputeMean(ctx, s.linkID)
		if err != nil {
			return CheckResult{}, err
		}
		if math.Abs(recomputed-s.avg) > avgTolerance {
			return CheckResult{
				Name:   "average_spot_check",
				Passed: false,
				Detail: fmt.Sprintf("link %d: stored AVG %.4f, recomputed %.4f", s.linkID, s.avg, recomputed),
			}, nil
		}
	}
	return CheckResult{
		Name:   "average_spot_check",
		Passed: true,
		Detail: fmt.Sprintf("%d links within %.1f mph", len(samples), avgTolerance),
	}, nil
}

func (v *Validator) recomputeMean(ctx context.Context, linkID int64) (float64, error) {
	rows, err := v.pool.Query(ctx, `SELECT speed FROM speed_records WHERE link_id = $1`, linkID)
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrorTypeIntegrity, "failed to fetch speeds for link %d", linkID)
	}
	defer rows.Close()

	var sum float64
	var n int64
	for rows.Next() {
		var speed float64
		if err := rows.Scan(&speed); err != nil {
			return 0, errors.Wrapf(err, errors.ErrorTypeIntegrity, "failed to scan speed for link %d", linkID)
		}
		sum += speed
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, errors.Wrapf(err, errors.ErrorTypeIntegrity, "failed to read speeds for link %d", linkID)
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}
