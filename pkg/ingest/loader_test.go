package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geolinks/geolinks/pkg/config"
	"github.com/geolinks/geolinks/pkg/errors"
	"github.com/geolinks/geolinks/pkg/models"
)

const lineJSON = `{"type":"LineString","coordinates":[[-73.99,40.73],[-73.98,40.74]]}`

// fakeSource replays pre-built record batches.
type fakeSource struct {
	location string
	records  []arrow.Record
	next     int
	closed   bool
}

func (s *fakeSource) Location() string { return s.location }

func (s *fakeSource) TotalRows() int64 {
	var n int64
	for _, rec := range s.records {
		n += rec.NumRows()
	}
	return n
}

func (s *fakeSource) Next(_ context.Context) (arrow.Record, error) {
	if s.next >= len(s.records) {
		return nil, nil
	}
	rec := s.records[s.next]
	s.next++
	return rec, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

// fakeStorage mimics the store's conflict and copy semantics in memory.
// failLinksAtChunk / failSpeedsAtChunk simulate a chunk transaction
// failure on the nth write call (1-based).
type fakeStorage struct {
	links             map[int64]models.Link
	speeds            []models.SpeedRecord
	linkWrites        int
	speedWrites       int
	failLinksAtChunk  int
	failSpeedsAtChunk int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{links: make(map[int64]models.Link)}
}

func (f *fakeStorage) WriteLinks(_ context.Context, links []models.Link, _ int) (int64, error) {
	f.linkWrites++
	if f.failLinksAtChunk > 0 && f.linkWrites == f.failLinksAtChunk {
		return 0, errors.New(errors.ErrorTypeChunkWrite, "simulated chunk failure")
	}
	var inserted int64
	for _, l := range links {
		if _, dup := f.links[l.LinkID]; dup {
			continue // first occurrence wins
		}
		f.links[l.LinkID] = l
		inserted++
	}
	return inserted, nil
}

func (f *fakeStorage) WriteSpeeds(_ context.Context, records []models.SpeedRecord) (int64, error) {
	f.speedWrites++
	if f.failSpeedsAtChunk > 0 && f.speedWrites == f.failSpeedsAtChunk {
		return 0, errors.New(errors.ErrorTypeChunkWrite, "simulated chunk failure")
	}
	f.speeds = append(f.speeds, records...)
	return int64(len(records)), nil
}

func (f *fakeStorage) LinkIDSet(_ context.Context) (map[int64]struct{}, error) {
	out := make(map[int64]struct{}, len(f.links))
	for id := range f.links {
		out[id] = struct{}{}
	}
	return out, nil
}

func linkRecord(t *testing.T, ids []int64, geoJSON string) arrow.Record {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "link_id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "geo_json", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()
	for _, id := range ids {
		b.Field(0).(*array.Int64Builder).Append(id)
		b.Field(1).(*array.StringBuilder).Append(geoJSON)
	}
	return b.NewRecord()
}

func speedRecord(t *testing.T, ids []int64, speeds []float64) arrow.Record {
	t.Helper()
	require.Equal(t, len(ids), len(speeds))
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "link_id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "date_time", Type: arrow.FixedWidthTypes.Timestamp_us},
		{Name: "average_speed", Type: arrow.PrimitiveTypes.Float64},
	}, nil)
	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()
	at := time.Date(2024, 3, 15, 8, 30, 0, 0, time.UTC)
	for i, id := range ids {
		b.Field(0).(*array.Int64Builder).Append(id)
		b.Field(1).(*array.TimestampBuilder).Append(arrow.Timestamp(at.UnixMicro()))
		b.Field(2).(*array.Float64Builder).Append(speeds[i])
	}
	return b.NewRecord()
}

func testIngestConfig() config.IngestConfig {
	cfg := config.New().Ingest
	cfg.ProgressEvery = 0
	return cfg
}

func TestLoaderRun(t *testing.T) {
	// Three link rows, one a duplicate id; five speed rows, one against a
	// link that was never ingested and one implausibly fast.
	links := &fakeSource{
		location: "links.parquet",
		records:  []arrow.Record{linkRecord(t, []int64{1, 2, 1}, lineJSON)},
	}
	speeds := &fakeSource{
		location: "speeds.parquet",
		records:  []arrow.Record{speedRecord(t, []int64{1, 1, 2, 99, 2}, []float64{30, 25, 40, 30, 500})},
	}
	storage := newFakeStorage()

	summary, err := New(storage, testIngestConfig(), "mph").Run(context.Background(), links, speeds)
	require.NoError(t, err)

	assert.Equal(t, int64(3), summary.Links.RowsRead)
	assert.Equal(t, int64(3), summary.Links.RowsAccepted)
	assert.Equal(t, int64(2), summary.Links.RowsCommitted)
	assert.Equal(t, int64(1), summary.Links.DuplicatesSkipped)
	assert.Equal(t, int64(1), summary.Links.ChunksCommitted)
	assert.True(t, summary.Links.Consistent())

	assert.Equal(t, int64(5), summary.Speeds.RowsRead)
	assert.Equal(t, int64(3), summary.Speeds.RowsAccepted)
	assert.Equal(t, int64(3), summary.Speeds.RowsCommitted)
	assert.Equal(t, int64(1), summary.Speeds.RejectReasons[models.RejectMissingLink])
	assert.Equal(t, int64(1), summary.Speeds.RejectReasons[models.RejectInvalidSpeed])
	assert.True(t, summary.Speeds.Consistent())

	assert.Len(t, storage.links, 2)
	assert.Len(t, storage.speeds, 3)
	for _, r := range storage.speeds {
		assert.Equal(t, "AM Peak", r.TimePeriod)
		assert.Equal(t, "Friday", r.DayOfWeek)
	}
}

func TestLoaderChunkFailureKeepsEarlierChunks(t *testing.T) {
	links := &fakeSource{
		location: "links.parquet",
		records:  []arrow.Record{linkRecord(t, []int64{1, 2}, lineJSON)},
	}
	speeds := &fakeSource{
		location: "speeds.parquet",
		records: []arrow.Record{
			speedRecord(t, []int64{1, 2}, []float64{30, 40}),
			speedRecord(t, []int64{1, 2}, []float64{31, 41}),
			speedRecord(t, []int64{1, 2}, []float64{32, 42}),
		},
	}
	storage := newFakeStorage()
	storage.failSpeedsAtChunk = 2

	summary, err := New(storage, testIngestConfig(), "mph").Run(context.Background(), links, speeds)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeChunkWrite))

	// Everything before the failing chunk stays durable and accounted.
	assert.Equal(t, int64(1), summary.Speeds.ChunksCommitted)
	assert.Equal(t, int64(2), summary.Speeds.RowsCommitted)
	assert.Len(t, storage.speeds, 2)
}

func TestLoaderLinkFailureSkipsSpeedPhase(t *testing.T) {
	links := &fakeSource{
		location: "links.parquet",
		records:  []arrow.Record{linkRecord(t, []int64{1}, lineJSON)},
	}
	speeds := &fakeSource{
		location: "speeds.parquet",
		records:  []arrow.Record{speedRecord(t, []int64{1}, []float64{30})},
	}
	storage := newFakeStorage()
	storage.failLinksAtChunk = 1

	summary, err := New(storage, testIngestConfig(), "mph").Run(context.Background(), links, speeds)
	require.Error(t, err)
	assert.Equal(t, 0, storage.speedWrites)
	assert.Equal(t, int64(0), summary.Speeds.RowsRead)
}

func TestLoaderMultipleChunks(t *testing.T) {
	links := &fakeSource{
		location: "links.parquet",
		records: []arrow.Record{
			linkRecord(t, []int64{1, 2}, lineJSON),
			linkRecord(t, []int64{3, 4}, lineJSON),
			linkRecord(t, []int64{5}, ""),
		},
	}
	speeds := &fakeSource{location: "speeds.parquet"}
	storage := newFakeStorage()

	summary, err := New(storage, testIngestConfig(), "mph").Run(context.Background(), links, speeds)
	require.NoError(t, err)
	assert.Equal(t, int64(5), summary.Links.RowsRead)
	assert.Equal(t, int64(3), summary.Links.ChunksCommitted)
	assert.Equal(t, int64(1), summary.Links.GeometryAbsent)
	assert.Len(t, storage.links, 5)
}

func TestRunSummaryRoundTrip(t *testing.T) {
	summary := &RunSummary{
		Links:  newDatasetSummary(DatasetLinks, "links.parquet"),
		Speeds: newDatasetSummary(DatasetSpeeds, "speeds.parquet"),
	}
	summary.Links.RowsRead = 100
	summary.Links.RowsAccepted = 98
	summary.Links.RowsRejected = 2
	summary.Links.RowsCommitted = 97
	summary.Links.DuplicatesSkipped = 1
	summary.Links.RejectReasons[models.RejectBadLinkID] = 2

	path := filepath.Join(t.TempDir(), "summary.json")
	require.NoError(t, summary.WriteFile(path))

	loaded, err := LoadSummary(path)
	require.NoError(t, err)
	assert.Equal(t, summary.Links.RowsCommitted, loaded.Links.RowsCommitted)
	assert.Equal(t, int64(2), loaded.Links.RejectReasons[models.RejectBadLinkID])
	assert.True(t, loaded.Links.Consistent())
}
