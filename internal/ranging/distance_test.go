package ranging

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDistance_Below(t *testing.T) {
	tests := []struct {
		name string
		d    Distance
		want bool
	}{
		{"valid closer", Millimetres(200), true},
		{"valid equal", Millimetres(700), false},
		{"valid farther", Millimetres(900), false},
		{"no data", Distance{}, false},
		{"no echo", Absent(NoEcho), false},
		{"out of range", Absent(OutOfRange), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.d.Below(700))
		})
	}
}

func TestDistance_GreaterTreatsAbsentAsFar(t *testing.T) {
	assert.True(t, Absent(NoEcho).Greater(Millimetres(11999)))
	assert.False(t, Millimetres(11999).Greater(Absent(NoData)))
	assert.False(t, Absent(NoData).Greater(Absent(OutOfRange)), "absent distances compare equal")
	assert.True(t, Millimetres(500).Greater(Millimetres(499)))
}

func TestAbsent_RejectsValidReason(t *testing.T) {
	assert.Equal(t, NoData, Absent(Valid).Status)
}

func TestNearest(t *testing.T) {
	assert.Equal(t, Millimetres(300), Nearest(Millimetres(800), Absent(NoEcho), Millimetres(300)))
	assert.Equal(t, Millimetres(800), Nearest(Absent(NoEcho), Millimetres(800)))
	assert.Equal(t, NoEcho, Nearest(Absent(NoData), Absent(NoEcho)).Status)
	assert.Equal(t, NoData, Nearest().Status)
}

func TestDistance_String(t *testing.T) {
	assert.Equal(t, "250mm", Millimetres(250).String())
	assert.Equal(t, "no-echo", Absent(NoEcho).String())
	assert.Equal(t, "status(9)", Status(9).String())
}

func TestLatest_StoreLoad(t *testing.T) {
	var cell Latest[Summary]
	assert.Equal(t, Summary{}, cell.Load())

	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cell.Store(Summary{Front: Millimetres(400)}, at)
	got := cell.Load()
	assert.Equal(t, Millimetres(400), got.Front)
	assert.Equal(t, NoData, got.Left.Status)

	updated, writes := cell.Updated()
	assert.Equal(t, at, updated)
	assert.Equal(t, uint64(1), writes)
}

func TestLatest_ConcurrentAccess(t *testing.T) {
	var cell Latest[Distance]
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			cell.Store(Millimetres(float64(i)), time.Now())
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = cell.Load()
		}
	}()
	wg.Wait()
	assert.Equal(t, Millimetres(999), cell.Load())
}
