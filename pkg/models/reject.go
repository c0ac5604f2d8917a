package models

import "fmt"

// RejectReason classifies why a single source row was skipped. Row-level
// rejects never abort a run; they are counted and sampled.
type RejectReason string

const (
	// RejectBadLinkID marks a row whose link identifier is missing or malformed
	RejectBadLinkID RejectReason = "bad link_id"
	// RejectMissingLink marks a speed row referencing a link that was never ingested
	RejectMissingLink RejectReason = "missing link"
	// RejectInvalidSpeed marks a speed outside the plausible [0, 300] source range
	RejectInvalidSpeed RejectReason = "invalid speed"
	// RejectInvalidTimestamp marks a missing or unparsable timestamp
	RejectInvalidTimestamp RejectReason = "invalid timestamp"
)

// RejectSample retains enough of a rejected row to diagnose it from logs.
type RejectSample struct {
	Reason RejectReason `json:"reason"`
	Row    int64        `json:"row"`
	Detail string       `json:"detail"`
}

// RejectLog accumulates reject counts by reason plus a bounded sample of
// offending rows. The zero value is not usable; use NewRejectLog.
type RejectLog struct {
	Counts     map[RejectReason]int64 `json:"counts"`
	Samples    []RejectSample         `json:"samples"`
	sampleSize int
}

// NewRejectLog creates a RejectLog keeping at most sampleSize samples.
func NewRejectLog(sampleSize int) *RejectLog {
	return &RejectLog{
		Counts:     make(map[RejectReason]int64),
		sampleSize: sampleSize,
	}
}

// Add records one rejected row.
func (r *RejectLog) Add(reason RejectReason, row int64, format string, args ...interface{}) {
	r.Counts[reason]++
	if len(r.Samples) < r.sampleSize {
		r.Samples = append(r.Samples, RejectSample{
			Reason: reason,
			Row:    row,
			Detail: fmt.Sprintf(format, args...),
		})
	}
}

// Total returns the number of rejected rows across all reasons.
func (r *RejectLog) Total() int64 {
	var n int64
	for _, c := range r.Counts {
		n += c
	}
	return n
}

// Merge folds another log's counts and samples into this one.
func (r *RejectLog) Merge(other *RejectLog) {
	if other == nil {
		return
	}
	for reason, c := range other.Counts {
		r.Counts[reason] += c
	}
	for _, s := range other.Samples {
		if len(r.Samples) >= r.sampleSize {
			break
		}
		r.Samples = append(r.Samples, s)
	}
}
