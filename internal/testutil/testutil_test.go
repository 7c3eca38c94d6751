package testutil

import (
	"net/http"
	"testing"

	"github.com/banshee-data/navcore/internal/motion"
	"github.com/banshee-data/navcore/internal/ranging"
)

func TestAssertStatusCode(t *testing.T) {
	AssertStatusCode(t, http.StatusOK, http.StatusOK)
}

func TestReading(t *testing.T) {
	r := Reading(450, motion.Left)
	if !r.Min.Valid() || r.Min.MM != 450 {
		t.Errorf("Min = %v, want valid 450mm", r.Min)
	}
	if r.Preferred != motion.Left {
		t.Errorf("Preferred = %v, want left", r.Preferred)
	}
	if r.Sectors.Front != r.Min {
		t.Errorf("front sector should mirror Min")
	}
}

func TestBlindReading(t *testing.T) {
	r := BlindReading(motion.Right)
	if r.Min.Valid() || r.Min.Status != ranging.NoData {
		t.Errorf("Min = %v, want no-data", r.Min)
	}
}
