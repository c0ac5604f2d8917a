// Package models defines the domain records populated by the ingestion
// pipeline and the reject accounting shared between the transformer and
// the loader.
package models

import (
	"fmt"

	"github.com/paulmach/orb"
)

// SRID is the spatial reference of all stored geometries (WGS84).
const SRID = 4326

// Link is a road segment. link_id is the upstream natural key; geometry is
// optional and, when present, a LineString in WGS84.
type Link struct {
	LinkID     int64
	RoadName   *string
	Length     float64
	RoadType   *string
	SpeedLimit *int32
	// Geometry is nil when the source row had no parseable geometry
	Geometry orb.LineString
}

// HasGeometry reports whether the link carries a geometry.
func (l *Link) HasGeometry() bool {
	return len(l.Geometry) > 0
}

func (l *Link) String() string {
	name := "Unnamed Road"
	if l.RoadName != nil {
		name = *l.RoadName
	}
	return fmt.Sprintf("Link %d: %s", l.LinkID, name)
}
