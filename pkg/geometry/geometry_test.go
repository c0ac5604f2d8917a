package geometry

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLineGeoJSON(t *testing.T) {
	res := ParseLine(`{"type":"LineString","coordinates":[[-73.99,40.73],[-73.98,40.74]]}`)
	require.Equal(t, Present, res.State)
	require.Len(t, res.Line, 2)
	assert.InDelta(t, -73.99, res.Line[0][0], 1e-9)
	assert.InDelta(t, 40.73, res.Line[0][1], 1e-9)
}

func TestParseLineMultiLineStringTakesFirstMember(t *testing.T) {
	res := ParseLine(`{"type":"MultiLineString","coordinates":[[[-73.99,40.73],[-73.98,40.74]],[[-74.0,40.7],[-74.01,40.71]]]}`)
	require.Equal(t, Present, res.State)
	require.Len(t, res.Line, 2)
	assert.InDelta(t, -73.99, res.Line[0][0], 1e-9)
}

func TestParseLineWKT(t *testing.T) {
	res := ParseLine("LINESTRING(-73.99 40.73, -73.98 40.74)")
	require.Equal(t, Present, res.State)
	assert.Len(t, res.Line, 2)
}

func TestParseLineAbsent(t *testing.T) {
	for _, payload := range []string{"", "   ", "null"} {
		res := ParseLine(payload)
		assert.Equal(t, Absent, res.State, "payload %q", payload)
	}
}

func TestParseLineMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"truncated json", `{"type":"LineString","coordinates":`},
		{"not a geometry", `{"foo":"bar"}`},
		{"point instead of line", `{"type":"Point","coordinates":[-73.99,40.73]}`},
		{"single point line", `{"type":"LineString","coordinates":[[-73.99,40.73]]}`},
		{"empty multiline", `{"type":"MultiLineString","coordinates":[]}`},
		{"garbage wkt", "LINESTRING(not numbers)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ParseLine(tt.payload)
			assert.Equal(t, Malformed, res.State)
			assert.NotEmpty(t, res.Reason)
		})
	}
}

func TestParseLineIsDeterministic(t *testing.T) {
	payload := `{"type":"LineString","coordinates":[[-73.99,40.73],[-73.98,40.74]]}`
	first := ParseLine(payload)
	second := ParseLine(payload)
	assert.Equal(t, first, second)
}

func TestMarshalWKBRoundTrip(t *testing.T) {
	line := orb.LineString{{-73.99, 40.73}, {-73.98, 40.74}}
	data, err := MarshalWKB(line)
	require.NoError(t, err)

	decoded, err := wkb.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, line, decoded)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "absent", Absent.String())
	assert.Equal(t, "present", Present.String())
	assert.Equal(t, "malformed", Malformed.String())
}
