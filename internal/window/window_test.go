package window

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalyze_RequiresAtLeastThreeSamples(t *testing.T) {
	a := New(5)

	a.AddSnapshot(1, 1000, map[string]Sample{"C": {InstanceCount: 10}})
	a.AddSnapshot(2, 2000, map[string]Sample{"C": {InstanceCount: 20}})

	stats := a.Analyze(nil)
	_, present := stats["C"]
	require.False(t, present)
}

func TestAnalyze_ConsistentGrowth(t *testing.T) {
	a := New(5)

	// oldest to newest: 10, 20, 30, 40, 50
	counts := []uint64{10, 20, 30, 40, 50}
	for i, c := range counts {
		a.AddSnapshot(uint64(i), int64(i*1000), map[string]Sample{"Grow": {InstanceCount: c, TotalSize: c * 1000}})
	}

	stats := a.Analyze(nil)
	s, present := stats["Grow"]
	require.True(t, present)
	require.Equal(t, 4, s.GrowthCount)
	require.True(t, s.IsConsistentGrowth)
	require.Greater(t, s.Slope, 0.0)
	require.Equal(t, uint64(50), s.MaxInstanceCount)
	require.Equal(t, uint64(10), s.MinInstanceCount)
}

func TestOLSSlope_ZeroWhenFlat(t *testing.T) {
	a := New(5)

	for i := 0; i < 4; i++ {
		a.AddSnapshot(uint64(i), int64(i*1000), map[string]Sample{"Flat": {InstanceCount: 10}})
	}

	stats := a.Analyze(nil)
	require.InDelta(t, 0.0, stats["Flat"].Slope, 1e-9)
}

func TestWindowSize_BoundsRingLength(t *testing.T) {
	a := New(3)

	for i := 0; i < 10; i++ {
		a.AddSnapshot(uint64(i), int64(i*1000), map[string]Sample{"C": {InstanceCount: uint64(i)}})
	}

	r := a.classRings["C"]
	require.Len(t, r.samples, 3)
	// newest-first: last pushed value (9) should be at index 0
	require.Equal(t, uint64(9), r.samples[0].InstanceCount)
}
