package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"go.uber.org/zap"

	"github.com/geolinks/geolinks/pkg/config"
	"github.com/geolinks/geolinks/pkg/errors"
	"github.com/geolinks/geolinks/pkg/logger"
	"github.com/geolinks/geolinks/pkg/metrics"
	"github.com/geolinks/geolinks/pkg/models"
	"github.com/geolinks/geolinks/pkg/transform"
)

const (
	DatasetLinks  = "links"
	DatasetSpeeds = "speed_records"
)

// BatchSource yields Arrow record batches from a dataset. Satisfied by
// *dataset.Reader; tests substitute in-memory sources.
type BatchSource interface {
	Location() string
	TotalRows() int64
	Next(ctx context.Context) (arrow.Record, error)
	Close() error
}

// Storage is the slice of the store the loader needs. Satisfied by
// *store.Store; tests substitute fakes to exercise the chunk state
// machine without a database.
type Storage interface {
	WriteLinks(ctx context.Context, links []models.Link, batchSize int) (int64, error)
	WriteSpeeds(ctx context.Context, records []models.SpeedRecord) (int64, error)
	LinkIDSet(ctx context.Context) (map[int64]struct{}, error)
}

// Loader drives the two-phase chunked ingestion: links first, then speed
// records validated against the link ids the first phase committed. Each
// chunk is one transaction; a chunk failure aborts the run with everything
// up to the previous chunk durably committed.
type Loader struct {
	storage Storage
	cfg     config.IngestConfig
	unit    string
	log     *zap.Logger
}

// New creates a Loader. sourceUnit is "mph" or "kph".
func New(storage Storage, cfg config.IngestConfig, sourceUnit string) *Loader {
	return &Loader{
		storage: storage,
		cfg:     cfg,
		unit:    sourceUnit,
		log:     logger.Get(),
	}
}

// Run executes both phases and returns the full run summary. The returned
// summary is valid (partially filled) even when err is non-nil.
func (l *Loader) Run(ctx context.Context, links, speeds BatchSource) (*RunSummary, error) {
	summary := &RunSummary{
		Links:     newDatasetSummary(DatasetLinks, links.Location()),
		Speeds:    newDatasetSummary(DatasetSpeeds, speeds.Location()),
		StartedAt: time.Now().UTC(),
	}
	defer func() { summary.FinishedAt = time.Now().UTC() }()

	if err := l.loadLinks(ctx, links, &summary.Links); err != nil {
		return summary, err
	}

	knownLinks, err := l.storage.LinkIDSet(ctx)
	if err != nil {
		return summary, err
	}
	l.log.Info("link id set loaded", zap.Int("links", len(knownLinks)))

	if err := l.loadSpeeds(ctx, speeds, knownLinks, &summary.Speeds); err != nil {
		return summary, err
	}
	return summary, nil
}

func (l *Loader) loadLinks(ctx context.Context, src BatchSource, sum *DatasetSummary) error {
	log := l.log.With(zap.String("dataset", DatasetLinks), zap.String("location", src.Location()))
	log.Info("link ingestion started", zap.Int64("total_rows", src.TotalRows()))
	start := time.Now()
	tr := transform.NewLinkTransformer(l.cfg.RejectSampleSize)

	for {
		rec, err := src.Next(ctx)
		if err != nil {
			return err
		}
		if rec == nil {
			break
		}

		batch := tr.Transform(rec, sum.RowsRead)
		rows := rec.NumRows()
		rec.Release()

		sum.RowsRead += rows
		sum.RowsAccepted += int64(len(batch.Links))
		sum.GeometryAbsent += batch.GeometryAbsent
		sum.GeometryMalformed += batch.GeometryMalformed
		sum.addRejects(batch.Rejects)
		metrics.RowsRead.WithLabelValues(DatasetLinks).Add(float64(rows))
		metrics.RowsAccepted.WithLabelValues(DatasetLinks).Add(float64(len(batch.Links)))
		countRejects(DatasetLinks, batch.Rejects)

		if len(batch.Links) > 0 {
			chunkStart := time.Now()
			inserted, err := l.storage.WriteLinks(ctx, batch.Links, l.cfg.BatchSize)
			if err != nil {
				log.Error("chunk write failed",
					zap.Int64("chunks_committed", sum.ChunksCommitted),
					zap.Int64("rows_committed", sum.RowsCommitted),
					zap.Error(err))
				return err
			}
			metrics.ObserveChunk(DatasetLinks, time.Since(chunkStart))
			sum.RowsCommitted += inserted
			sum.DuplicatesSkipped += int64(len(batch.Links)) - inserted
			sum.ChunksCommitted++
			metrics.RowsCommitted.WithLabelValues(DatasetLinks).Add(float64(inserted))
			metrics.ChunksCommitted.WithLabelValues(DatasetLinks).Inc()
		}

		l.progress(log, sum, src.TotalRows())
	}

	sum.ElapsedSeconds = time.Since(start).Seconds()
	if !sum.Consistent() {
		return errors.Newf(errors.ErrorTypeInternal,
			"link row accounting mismatch: read %d, accepted %d, rejected %d",
			sum.RowsRead, sum.RowsAccepted, sum.RowsRejected)
	}
	log.Info("link ingestion finished",
		zap.Int64("rows_read", sum.RowsRead),
		zap.Int64("rows_committed", sum.RowsCommitted),
		zap.Int64("rows_rejected", sum.RowsRejected),
		zap.Int64("duplicates_skipped", sum.DuplicatesSkipped),
		zap.Int64("geometry_absent", sum.GeometryAbsent),
		zap.Int64("geometry_malformed", sum.GeometryMalformed),
		zap.Float64("elapsed_seconds", sum.ElapsedSeconds))
	return nil
}

func (l *Loader) loadSpeeds(ctx context.Context, src BatchSource, knownLinks map[int64]struct{}, sum *DatasetSummary) error {
	log := l.log.With(zap.String("dataset", DatasetSpeeds), zap.String("location", src.Location()))
	log.Info("speed ingestion started", zap.Int64("total_rows", src.TotalRows()))
	start := time.Now()
	tr := transform.NewSpeedTransformer(knownLinks, l.unit, l.cfg.RejectSampleSize)

	for {
		rec, err := src.Next(ctx)
		if err != nil {
			return err
		}
		if rec == nil {
			break
		}

		batch := tr.Transform(rec, sum.RowsRead)
		rows := rec.NumRows()
		rec.Release()

		sum.RowsRead += rows
		sum.RowsAccepted += int64(len(batch.Records))
		sum.PeriodMismatches += batch.PeriodMismatches
		sum.addRejects(batch.Rejects)
		metrics.RowsRead.WithLabelValues(DatasetSpeeds).Add(float64(rows))
		metrics.RowsAccepted.WithLabelValues(DatasetSpeeds).Add(float64(len(batch.Records)))
		countRejects(DatasetSpeeds, batch.Rejects)

		if len(batch.Records) > 0 {
			chunkStart := time.Now()
			copied, err := l.storage.WriteSpeeds(ctx, batch.Records)
			if err != nil {
				log.Error("chunk write failed",
					zap.Int64("chunks_committed", sum.ChunksCommitted),
					zap.Int64("rows_committed", sum.RowsCommitted),
					zap.Error(err))
				return err
			}
			metrics.ObserveChunk(DatasetSpeeds, time.Since(chunkStart))
			sum.RowsCommitted += copied
			sum.ChunksCommitted++
			metrics.RowsCommitted.WithLabelValues(DatasetSpeeds).Add(float64(copied))
			metrics.ChunksCommitted.WithLabelValues(DatasetSpeeds).Inc()
		}

		l.progress(log, sum, src.TotalRows())
	}

	sum.ElapsedSeconds = time.Since(start).Seconds()
	if !sum.Consistent() {
		return errors.Newf(errors.ErrorTypeInternal,
			"speed row accounting mismatch: read %d, accepted %d, rejected %d",
			sum.RowsRead, sum.RowsAccepted, sum.RowsRejected)
	}
	log.Info("speed ingestion finished",
		zap.Int64("rows_read", sum.RowsRead),
		zap.Int64("rows_committed", sum.RowsCommitted),
		zap.Int64("rows_rejected", sum.RowsRejected),
		zap.Int64("period_mismatches", sum.PeriodMismatches),
		zap.Float64("elapsed_seconds", sum.ElapsedSeconds))
	return nil
}

// progress emits a heartbeat every ProgressEvery chunks so a 1M+ row run
// is observable without flooding the log.
func (l *Loader) progress(log *zap.Logger, sum *DatasetSummary, total int64) {
	every := int64(l.cfg.ProgressEvery)
	if every <= 0 || sum.ChunksCommitted == 0 || sum.ChunksCommitted%every != 0 {
		return
	}
	pct := float64(0)
	if total > 0 {
		pct = 100 * float64(sum.RowsRead) / float64(total)
	}
	log.Info("ingestion progress",
		zap.Int64("chunks_committed", sum.ChunksCommitted),
		zap.Int64("rows_read", sum.RowsRead),
		zap.Int64("rows_committed", sum.RowsCommitted),
		zap.Int64("rows_rejected", sum.RowsRejected),
		zap.String("progress", fmt.Sprintf("%.1f%%", pct)))
}

func countRejects(dataset string, log *models.RejectLog) {
	if log == nil {
		return
	}
	for reason, c := range log.Counts {
		metrics.RowsRejected.WithLabelValues(dataset, string(reason)).Add(float64(c))
	}
}
