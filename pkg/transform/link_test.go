package transform

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geolinks/geolinks/pkg/models"
)

const validLineJSON = `{"type":"LineString","coordinates":[[-73.99,40.73],[-73.98,40.74]]}`

// linkRow is one test row; nil pointers become nulls in the batch.
type linkRow struct {
	linkID   *int64
	roadName string
	length   float64
	geoJSON  string
}

func i64(v int64) *int64 { return &v }

func buildLinkRecord(t *testing.T, rows []linkRow) arrow.Record {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "link_id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "road_name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "_length", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "geo_json", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()

	for _, row := range rows {
		if row.linkID == nil {
			b.Field(0).(*array.Int64Builder).AppendNull()
		} else {
			b.Field(0).(*array.Int64Builder).Append(*row.linkID)
		}
		if row.roadName == "" {
			b.Field(1).(*array.StringBuilder).AppendNull()
		} else {
			b.Field(1).(*array.StringBuilder).Append(row.roadName)
		}
		b.Field(2).(*array.Float64Builder).Append(row.length)
		if row.geoJSON == "" {
			b.Field(3).(*array.StringBuilder).AppendNull()
		} else {
			b.Field(3).(*array.StringBuilder).Append(row.geoJSON)
		}
	}
	return b.NewRecord()
}

func TestLinkTransformAccepted(t *testing.T) {
	rec := buildLinkRecord(t, []linkRow{
		{linkID: i64(100), roadName: "Main St", length: 0.42, geoJSON: validLineJSON},
	})
	defer rec.Release()

	batch := NewLinkTransformer(10).Transform(rec, 0)
	require.Len(t, batch.Links, 1)
	assert.Equal(t, int64(0), batch.Rejects.Total())

	link := batch.Links[0]
	assert.Equal(t, int64(100), link.LinkID)
	require.NotNil(t, link.RoadName)
	assert.Equal(t, "Main St", *link.RoadName)
	assert.InDelta(t, 0.42, link.Length, 1e-9)
	require.Len(t, link.Geometry, 2)
}

func TestLinkTransformRejectsBadLinkID(t *testing.T) {
	rec := buildLinkRecord(t, []linkRow{
		{linkID: nil, roadName: "No ID Rd", length: 1, geoJSON: validLineJSON},
		{linkID: i64(200), length: 1, geoJSON: validLineJSON},
	})
	defer rec.Release()

	batch := NewLinkTransformer(10).Transform(rec, 0)
	require.Len(t, batch.Links, 1)
	assert.Equal(t, int64(200), batch.Links[0].LinkID)
	assert.Equal(t, int64(1), batch.Rejects.Counts[models.RejectBadLinkID])
	require.Len(t, batch.Rejects.Samples, 1)
	assert.Equal(t, int64(0), batch.Rejects.Samples[0].Row)
}

func TestLinkTransformGeometryOptional(t *testing.T) {
	rec := buildLinkRecord(t, []linkRow{
		{linkID: i64(1), geoJSON: validLineJSON},
		{linkID: i64(2)},                       // no payload
		{linkID: i64(3), geoJSON: "not json"},  // malformed
		{linkID: i64(4), geoJSON: `{"x": 1 `}, // truncated
	})
	defer rec.Release()

	batch := NewLinkTransformer(10).Transform(rec, 0)

	// Geometry problems never reject a row.
	require.Len(t, batch.Links, 4)
	assert.Equal(t, int64(0), batch.Rejects.Total())
	assert.Equal(t, int64(1), batch.GeometryAbsent)
	assert.Equal(t, int64(2), batch.GeometryMalformed)

	assert.True(t, batch.Links[0].HasGeometry())
	assert.False(t, batch.Links[1].HasGeometry())
	assert.False(t, batch.Links[2].HasGeometry())
	assert.False(t, batch.Links[3].HasGeometry())
}

func TestLinkTransformAccounting(t *testing.T) {
	rec := buildLinkRecord(t, []linkRow{
		{linkID: i64(1), geoJSON: validLineJSON},
		{linkID: nil},
		{linkID: i64(2)},
		{linkID: nil},
	})
	defer rec.Release()

	batch := NewLinkTransformer(10).Transform(rec, 0)

	// Every row read is either accepted or rejected, nothing lost.
	assert.Equal(t, rec.NumRows(), int64(len(batch.Links))+batch.Rejects.Total())
}

func TestLinkTransformBaseRowOffset(t *testing.T) {
	rec := buildLinkRecord(t, []linkRow{{linkID: nil}})
	defer rec.Release()

	batch := NewLinkTransformer(10).Transform(rec, 5000)
	require.Len(t, batch.Rejects.Samples, 1)
	assert.Equal(t, int64(5000), batch.Rejects.Samples[0].Row)
}

func TestLinkTransformMissingOptionalColumns(t *testing.T) {
	// Only the required columns present.
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "link_id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "geo_json", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).Append(7)
	b.Field(1).(*array.StringBuilder).Append(validLineJSON)
	rec := b.NewRecord()
	defer rec.Release()

	batch := NewLinkTransformer(10).Transform(rec, 0)
	require.Len(t, batch.Links, 1)
	assert.Nil(t, batch.Links[0].RoadName)
	assert.Zero(t, batch.Links[0].Length)
}
