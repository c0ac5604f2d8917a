// Package geometry parses the embedded geometry payload of link rows into
// WGS84 line-strings. Parsing is permissive in a tagged way: a row with no
// payload yields Absent, an unparsable payload yields Malformed with the
// reason, and only Present carries a geometry. Callers decide what each
// state means; the ingestion pipeline stores NULL for both Absent and
// Malformed and keeps the row.
package geometry

import (
	"strings"

	gojson "github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

func init() {
	// GeoJSON payloads dominate the link dataset; route orb's JSON work
	// through goccy.
	geojson.CustomJSONMarshaler = jsonCodec{}
	geojson.CustomJSONUnmarshaler = jsonCodec{}
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return gojson.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return gojson.Unmarshal(data, v) }

// State tags the outcome of parsing an optional geometry payload.
type State int

const (
	// Absent means the source row carried no geometry payload
	Absent State = iota
	// Present means a valid line-string was parsed
	Present
	// Malformed means a payload existed but could not be parsed
	Malformed
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Present:
		return "present"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// LineResult is the tagged outcome of parsing one geometry payload.
type LineResult struct {
	State State
	// Line is set only when State is Present
	Line orb.LineString
	// Reason is set only when State is Malformed
	Reason string
}

// ParseLine parses a geometry payload into a line-string. The payload may
// be a GeoJSON geometry object (the upstream format) or WKT text. A GeoJSON
// MultiLineString collapses to its first member, matching the upstream
// loader.
func ParseLine(payload string) LineResult {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" || trimmed == "null" {
		return LineResult{State: Absent}
	}

	var geom orb.Geometry
	if strings.HasPrefix(trimmed, "{") {
		g, err := geojson.UnmarshalGeometry([]byte(trimmed))
		if err != nil {
			return LineResult{State: Malformed, Reason: "invalid GeoJSON: " + err.Error()}
		}
		geom = g.Geometry()
	} else {
		g, err := wkt.Unmarshal(trimmed)
		if err != nil {
			return LineResult{State: Malformed, Reason: "invalid WKT: " + err.Error()}
		}
		geom = g
	}

	switch g := geom.(type) {
	case orb.LineString:
		if len(g) < 2 {
			return LineResult{State: Malformed, Reason: "line-string has fewer than 2 points"}
		}
		return LineResult{State: Present, Line: g}
	case orb.MultiLineString:
		if len(g) == 0 || len(g[0]) < 2 {
			return LineResult{State: Malformed, Reason: "empty multi-line-string"}
		}
		return LineResult{State: Present, Line: g[0]}
	default:
		return LineResult{State: Malformed, Reason: "unsupported geometry type " + geom.GeoJSONType()}
	}
}

// MarshalWKB encodes a line-string as WKB for ST_GeomFromWKB binding.
func MarshalWKB(line orb.LineString) ([]byte, error) {
	return wkb.Marshal(line)
}
