package monitoring

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	assert.True(t, called, "custom logger was not called")

	called = false
	SetLogger(nil)
	Logf("test message")
	assert.False(t, called, "no-op logger should not reach the previous logger")
}

func TestLogf_Default(t *testing.T) {
	assert.NotNil(t, Logf)
	assert.NotPanics(t, func() { Logf("test message: %s", "value") })
}

func TestUseZerolog(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var buf bytes.Buffer
	UseZerolog(NewConsoleLogger(&buf, "navcore-test"))
	Logf("[nav] state %s -> %s", "Search", "Avoid")

	out := buf.String()
	assert.Contains(t, out, "[nav] state Search -> Avoid")
	assert.Contains(t, out, "navcore-test")
}

func TestRecordCounters(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	before := testutil.ToFloat64(lidarFrames.WithLabelValues(FrameBadChecksum))
	RecordFrame(FrameBadChecksum)
	assert.Equal(t, before+1, testutil.ToFloat64(lidarFrames.WithLabelValues(FrameBadChecksum)))

	SetFusedDistance(420, true)
	assert.Equal(t, 420.0, testutil.ToFloat64(fusedDistance))
	SetFusedDistance(420, false)
	assert.Equal(t, -1.0, testutil.ToFloat64(fusedDistance))

	before = testutil.ToFloat64(transitions.WithLabelValues("Approach", "Avoid"))
	RecordTransition("Approach", "Avoid")
	assert.Equal(t, before+1, testutil.ToFloat64(transitions.WithLabelValues("Approach", "Avoid")))

	before = testutil.ToFloat64(journalDropped)
	RecordJournalDropped()
	assert.Equal(t, before+1, testutil.ToFloat64(journalDropped))
}
