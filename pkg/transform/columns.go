package transform

import (
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// columns gives tolerant by-name access to one Arrow record batch. The
// source datasets are not fully consistent about physical types (ids as
// int64 or float64, timestamps as native or text), so each accessor
// normalizes whatever the column actually holds.
type columns struct {
	rec arrow.Record
	idx map[string]int
}

func newColumns(rec arrow.Record) columns {
	idx := make(map[string]int, rec.Schema().NumFields())
	for i, f := range rec.Schema().Fields() {
		idx[f.Name] = i
	}
	return columns{rec: rec, idx: idx}
}

func (c columns) has(name string) bool {
	_, ok := c.idx[name]
	return ok
}

func (c columns) column(name string) (arrow.Array, bool) {
	i, ok := c.idx[name]
	if !ok {
		return nil, false
	}
	return c.rec.Column(i), true
}

// str returns the column value as a string; false when the column is
// missing or the value is null.
func (c columns) str(name string, row int) (string, bool) {
	col, ok := c.column(name)
	if !ok || col.IsNull(row) {
		return "", false
	}

	switch a := col.(type) {
	case *array.String:
		return a.Value(row), true
	case *array.LargeString:
		return a.Value(row), true
	case *array.Binary:
		return string(a.Value(row)), true
	case *array.LargeBinary:
		return string(a.Value(row)), true
	default:
		return "", false
	}
}

// int64v returns the column value as an int64. Floats convert only when
// integral; strings are parsed.
func (c columns) int64v(name string, row int) (int64, bool) {
	col, ok := c.column(name)
	if !ok || col.IsNull(row) {
		return 0, false
	}

	switch a := col.(type) {
	case *array.Int64:
		return a.Value(row), true
	case *array.Int32:
		return int64(a.Value(row)), true
	case *array.Int16:
		return int64(a.Value(row)), true
	case *array.Uint32:
		return int64(a.Value(row)), true
	case *array.Uint64:
		return int64(a.Value(row)), true
	case *array.Float64:
		v := a.Value(row)
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case *array.Float32:
		v := float64(a.Value(row))
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case *array.String:
		n, err := strconv.ParseInt(strings.TrimSpace(a.Value(row)), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// float64v returns the column value as a float64; strings are parsed.
func (c columns) float64v(name string, row int) (float64, bool) {
	col, ok := c.column(name)
	if !ok || col.IsNull(row) {
		return 0, false
	}

	switch a := col.(type) {
	case *array.Float64:
		return a.Value(row), true
	case *array.Float32:
		return float64(a.Value(row)), true
	case *array.Int64:
		return float64(a.Value(row)), true
	case *array.Int32:
		return float64(a.Value(row)), true
	case *array.String:
		s := strings.TrimSpace(a.Value(row))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// timestampLayouts are the text timestamp shapes seen across dataset
// iterations, tried in order.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
}

// timev returns the column value as a timezone-aware time. Naive
// timestamps are taken as UTC.
func (c columns) timev(name string, row int) (time.Time, bool) {
	col, ok := c.column(name)
	if !ok || col.IsNull(row) {
		return time.Time{}, false
	}

	switch a := col.(type) {
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(row).ToTime(unit).UTC(), true
	case *array.Date32:
		return a.Value(row).ToTime().UTC(), true
	case *array.Date64:
		return a.Value(row).ToTime().UTC(), true
	case *array.String:
		s := strings.TrimSpace(a.Value(row))
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}
