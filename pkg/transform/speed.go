package transform

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/geolinks/geolinks/pkg/models"
	"github.com/geolinks/geolinks/pkg/timeperiod"
)

// SpeedColumns are the columns the speed dataset must provide.
var SpeedColumns = []string{"link_id", "date_time", "average_speed"}

// KphToMph converts kilometers per hour to the storage unit.
const KphToMph = 0.621371

// maxSourceSpeed bounds plausible speed values in source units.
const maxSourceSpeed = 300.0

// SpeedBatch is the outcome of transforming one speed row batch.
type SpeedBatch struct {
	Records []models.SpeedRecord
	Rejects *models.RejectLog
	// PeriodMismatches counts rows whose upstream period id disagrees
	// with the timestamp-derived bucket. The timestamp wins.
	PeriodMismatches int64
}

// SpeedTransformer converts speed dataset rows into SpeedRecord records.
// Referential validity is checked against the set of link ids already
// ingested; the set is read-only during transformation.
type SpeedTransformer struct {
	knownLinks map[int64]struct{}
	unitFactor float64
	sampleSize int
}

// NewSpeedTransformer creates a speed transformer. sourceUnit is "mph" or
// "kph"; storage is always mph.
func NewSpeedTransformer(knownLinks map[int64]struct{}, sourceUnit string, sampleSize int) *SpeedTransformer {
	factor := 1.0
	if sourceUnit == "kph" {
		factor = KphToMph
	}
	return &SpeedTransformer{
		knownLinks: knownLinks,
		unitFactor: factor,
		sampleSize: sampleSize,
	}
}

// Transform converts one record batch. Rows referencing unknown links,
// with speeds outside [0, 300] source units, or without a parsable
// timestamp are rejected with their reason.
func (t *SpeedTransformer) Transform(rec arrow.Record, baseRow int64) SpeedBatch {
	cols := newColumns(rec)
	n := int(rec.NumRows())

	out := SpeedBatch{
		Records: make([]models.SpeedRecord, 0, n),
		Rejects: models.NewRejectLog(t.sampleSize),
	}

	for row := 0; row < n; row++ {
		absRow := baseRow + int64(row)

		linkID, ok := cols.int64v("link_id", row)
		if !ok {
			out.Rejects.Add(models.RejectBadLinkID, absRow, "missing or malformed link_id")
			continue
		}

		if _, known := t.knownLinks[linkID]; !known {
			out.Rejects.Add(models.RejectMissingLink, absRow, "link %d not ingested", linkID)
			continue
		}

		ts, ok := cols.timev("date_time", row)
		if !ok {
			out.Rejects.Add(models.RejectInvalidTimestamp, absRow, "link %d: missing or unparsable date_time", linkID)
			continue
		}

		speed, ok := cols.float64v("average_speed", row)
		if !ok || speed < 0 || speed > maxSourceSpeed {
			out.Rejects.Add(models.RejectInvalidSpeed, absRow, "link %d: speed %.1f outside [0, %.0f]", linkID, speed, maxSourceSpeed)
			continue
		}

		period := timeperiod.FromTime(ts)
		if id, ok := cols.int64v("period", row); ok {
			if upstream, valid := timeperiod.ByID(int(id)); !valid || upstream.Name != period.Name {
				out.PeriodMismatches++
			}
		}

		out.Records = append(out.Records, models.SpeedRecord{
			LinkID:     linkID,
			Timestamp:  ts,
			DayOfWeek:  timeperiod.DayOfWeek(ts),
			TimePeriod: period.Name,
			Speed:      speed * t.unitFactor,
		})
	}

	return out
}
