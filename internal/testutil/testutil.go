// Package testutil provides fixtures shared by the navigation tests.
package testutil

import (
	"net/http"
	"testing"

	"github.com/banshee-data/navcore/internal/fusion"
	"github.com/banshee-data/navcore/internal/motion"
	"github.com/banshee-data/navcore/internal/ranging"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d (%s), want %d", got, http.StatusText(got), want)
	}
}

// Reading returns a fused reading whose nearest obstacle is mm away, with
// preferred as the clearer side.
func Reading(mm float64, preferred motion.Command) fusion.Reading {
	d := ranging.Millimetres(mm)
	return fusion.Reading{Min: d, Preferred: preferred, Sectors: ranging.Summary{Front: d}}
}

// BlindReading returns a reading with no usable distance from any device.
func BlindReading(preferred motion.Command) fusion.Reading {
	return fusion.Reading{Min: ranging.Absent(ranging.NoData), Preferred: preferred}
}
