// Package transform converts row batches of the source datasets into
// validated domain records. A malformed individual row never aborts a
// batch; it is counted, sampled, and skipped. Classification is pure:
// the same row always yields the same accept/reject decision.
package transform

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/geolinks/geolinks/pkg/geometry"
	"github.com/geolinks/geolinks/pkg/models"
)

// LinkColumns are the columns the link dataset must provide.
var LinkColumns = []string{"link_id", "geo_json"}

// LinkBatch is the outcome of transforming one link row batch. Geometry
// problems do not reject a row (geometry is optional); they are tallied
// separately so the run summary can surface them.
type LinkBatch struct {
	Links             []models.Link
	Rejects           *models.RejectLog
	GeometryAbsent    int64
	GeometryMalformed int64
}

// LinkTransformer converts link dataset rows into Link records.
type LinkTransformer struct {
	sampleSize int
}

// NewLinkTransformer creates a link transformer keeping at most
// sampleSize reject samples per batch.
func NewLinkTransformer(sampleSize int) *LinkTransformer {
	return &LinkTransformer{sampleSize: sampleSize}
}

// Transform converts one record batch. baseRow is the absolute row offset
// of the batch within the dataset, used only for reject samples.
func (t *LinkTransformer) Transform(rec arrow.Record, baseRow int64) LinkBatch {
	cols := newColumns(rec)
	n := int(rec.NumRows())

	out := LinkBatch{
		Links:   make([]models.Link, 0, n),
		Rejects: models.NewRejectLog(t.sampleSize),
	}

	for row := 0; row < n; row++ {
		absRow := baseRow + int64(row)

		linkID, ok := cols.int64v("link_id", row)
		if !ok {
			out.Rejects.Add(models.RejectBadLinkID, absRow, "missing or malformed link_id")
			continue
		}

		link := models.Link{LinkID: linkID}

		if name, ok := cols.str("road_name", row); ok && name != "" {
			link.RoadName = &name
		}
		if length, ok := cols.float64v("_length", row); ok && length > 0 {
			link.Length = length
		}
		if roadType, ok := cols.str("road_type", row); ok && roadType != "" {
			link.RoadType = &roadType
		}
		if limit, ok := cols.int64v("speed_limit", row); ok && limit >= 0 && limit <= 200 {
			v := int32(limit)
			link.SpeedLimit = &v
		}

		payload, _ := cols.str("geo_json", row)
		switch res := geometry.ParseLine(payload); res.State {
		case geometry.Present:
			link.Geometry = res.Line
		case geometry.Absent:
			out.GeometryAbsent++
		case geometry.Malformed:
			// Geometry is optional: keep the row, store NULL.
			out.GeometryMalformed++
		}

		out.Links = append(out.Links, link)
	}

	return out
}
