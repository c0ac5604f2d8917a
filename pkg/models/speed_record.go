package models

import (
	"fmt"
	"time"
)

// SpeedRecord is one traffic-speed observation for a link at a point in
// time. The id column is database-generated; day-of-week and time-period
// are derived from the timestamp at transform time for query performance.
type SpeedRecord struct {
	LinkID     int64
	Timestamp  time.Time
	DayOfWeek  string
	TimePeriod string
	// Speed is stored in mph regardless of the source unit
	Speed float64
}

// IsPeak reports whether the record falls in AM or PM peak.
func (s *SpeedRecord) IsPeak() bool {
	return s.TimePeriod == "AM Peak" || s.TimePeriod == "PM Peak"
}

func (s *SpeedRecord) String() string {
	return fmt.Sprintf("Speed %.1f mph on link %d at %s", s.Speed, s.LinkID, s.Timestamp.Format(time.RFC3339))
}
