package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReportPassed(t *testing.T) {
	r := &Report{Checks: []CheckResult{
		{Name: "geometry_validity", Passed: true},
		{Name: "row_counts", Passed: true, Skipped: true},
	}}
	assert.True(t, r.Passed())

	r.Checks = append(r.Checks, CheckResult{Name: "referential_integrity", Passed: false})
	assert.False(t, r.Passed())
}

func TestReportSkippedChecksDoNotFail(t *testing.T) {
	r := &Report{Checks: []CheckResult{
		{Name: "row_counts", Passed: false, Skipped: true, Detail: "no run summary provided"},
	}}
	assert.True(t, r.Passed())
}

func TestReportString(t *testing.T) {
	r := &Report{Checks: []CheckResult{
		{Name: "geometry_validity", Passed: true, Detail: "0 invalid geometries"},
		{Name: "srid_uniformity", Passed: false, Detail: "link 7 has SRID 3857"},
		{Name: "row_counts", Skipped: true, Detail: "no run summary provided"},
	}}
	out := r.String()
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "SKIP")
	assert.Contains(t, out, "link 7 has SRID 3857")
	assert.Contains(t, out, "integrity verification FAILED")
}

func TestReportStringAllPassed(t *testing.T) {
	r := &Report{Checks: []CheckResult{
		{Name: "geometry_validity", Passed: true, Detail: "0 invalid geometries"},
	}}
	assert.Contains(t, r.String(), "integrity verification passed")
}
