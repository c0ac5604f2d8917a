package ingest

import (
	"fmt"
	"os"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/geolinks/geolinks/pkg/models"
)

// DatasetSummary accumulates all counters of one dataset's load. It is an
// explicit value threaded through the pipeline and returned at the end;
// nothing ambient, so the loader is testable in isolation.
type DatasetSummary struct {
	Dataset       string `json:"dataset"`
	Location      string `json:"location"`
	RowsRead      int64  `json:"rows_read"`
	RowsAccepted  int64  `json:"rows_accepted"`
	RowsRejected  int64  `json:"rows_rejected"`
	RowsCommitted int64  `json:"rows_committed"`
	// DuplicatesSkipped counts accepted link rows dropped by the
	// insert-or-ignore conflict path (first occurrence wins)
	DuplicatesSkipped int64                         `json:"duplicates_skipped,omitempty"`
	RejectReasons     map[models.RejectReason]int64 `json:"reject_reasons"`
	RejectSamples     []models.RejectSample         `json:"reject_samples,omitempty"`
	GeometryAbsent    int64                         `json:"geometry_absent,omitempty"`
	GeometryMalformed int64                         `json:"geometry_malformed,omitempty"`
	PeriodMismatches  int64                         `json:"period_mismatches,omitempty"`
	ChunksCommitted   int64                         `json:"chunks_committed"`
	ElapsedSeconds    float64                       `json:"elapsed_seconds"`
}

// Consistent reports whether rows read = accepted + rejected, which must
// hold exactly: no silent loss.
func (d *DatasetSummary) Consistent() bool {
	return d.RowsRead == d.RowsAccepted+d.RowsRejected
}

// addRejects folds a batch's reject log into the summary.
func (d *DatasetSummary) addRejects(log *models.RejectLog) {
	if log == nil {
		return
	}
	for reason, c := range log.Counts {
		d.RejectReasons[reason] += c
		d.RowsRejected += c
	}
	d.RejectSamples = append(d.RejectSamples, log.Samples...)
}

// RunSummary is the final report of one ingestion run.
type RunSummary struct {
	Links      DatasetSummary `json:"links"`
	Speeds     DatasetSummary `json:"speed_records"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// newDatasetSummary creates an empty summary for one dataset.
func newDatasetSummary(dataset, location string) DatasetSummary {
	return DatasetSummary{
		Dataset:       dataset,
		Location:      location,
		RejectReasons: make(map[models.RejectReason]int64),
	}
}

// WriteFile persists the summary as JSON, consumable by the verify
// command's row-count check.
func (s *RunSummary) WriteFile(path string) error {
	data, err := gojson.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write run summary: %w", err)
	}
	return nil
}

// LoadSummary reads a summary written by WriteFile.
func LoadSummary(path string) (*RunSummary, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read run summary: %w", err)
	}
	var s RunSummary
	if err := gojson.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse run summary: %w", err)
	}
	return &s, nil
}
