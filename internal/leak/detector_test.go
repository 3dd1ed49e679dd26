package leak

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhao666666/java-memory-analyzer/internal/record"
	"github.com/zhao666666/java-memory-analyzer/internal/registry"
	"github.com/zhao666666/java-memory-analyzer/internal/window"
)

func newRec(id uint64, class string, size uint64, ts int64, site string) *record.Record {
	return &record.Record{ObjectID: id, ClassName: class, SizeBytes: size, TimestampMs: ts, AllocationSite: site}
}

func TestDetect_NotDetectingReturnsNil(t *testing.T) {
	d := New(DefaultConfig(), 50)
	reg := registry.New(100000)

	report := d.Detect(reg, window.New(10), 0)
	require.Nil(t, report)
}

func TestDetect_AgeBasedStrategy(t *testing.T) {
	cfg := Config{AgeThresholdMs: 5000, GrowthThreshold: 10, WindowSize: 10}
	d := New(cfg, 50)
	d.Start()

	reg := registry.New(100000)

	now := int64(20000)
	for i := uint64(1); i <= 15; i++ {
		reg.Track(newRec(i, "Old", 1024, now-10000, "Old.alloc(Old.java:5)"))
	}

	report := d.Detect(reg, window.New(10), now)
	require.NotNil(t, report)
	require.Len(t, report.Candidates, 1)

	c := report.Candidates[0]
	require.Equal(t, TypeAgeBased, c.Type)
	require.Equal(t, uint64(15), c.InstanceCount)
	require.Equal(t, uint64(15*1024), c.TotalSize)
}

func TestDetect_WindowBasedStrategy(t *testing.T) {
	cfg := Config{AgeThresholdMs: 60000, GrowthThreshold: 10, WindowSize: 5}
	d := New(cfg, 50)
	d.Start()

	win := window.New(5)
	counts := []uint64{10, 20, 30, 40, 50}
	for i, c := range counts {
		win.AddSnapshot(uint64(i), int64(i*1000), map[string]window.Sample{"Grow": {InstanceCount: c, TotalSize: c * 1000}})
	}

	reg := registry.New(100000)
	for i := uint64(1); i <= 50; i++ {
		reg.Track(newRec(i, "Grow", 1000, 100, "Grow.alloc(Grow.java:1)"))
	}

	report := d.Detect(reg, win, 5000)
	require.NotNil(t, report)

	var found *Candidate

	for i := range report.Candidates {
		if report.Candidates[i].Type == TypeWindowBased {
			found = &report.Candidates[i]
		}
	}

	require.NotNil(t, found)
	require.Equal(t, uint64(50), found.InstanceCount)
}

func TestSeverity_BucketsMatchScenario(t *testing.T) {
	highSev := Candidate{InstanceCount: 12000, TotalSize: 200 * 1024 * 1024, Type: TypeWindowBased}
	medSev := Candidate{InstanceCount: 500, TotalSize: 5 * 1024 * 1024, Type: TypeGrowthBased}
	lowSev := Candidate{InstanceCount: 50, TotalSize: 200 * 1024, Type: TypeAgeBased}

	require.GreaterOrEqual(t, highSev.Severity(), 70)
	require.True(t, medSev.Severity() >= 40 && medSev.Severity() < 70)
	require.Less(t, lowSev.Severity(), 40)

	report := &Report{Candidates: []Candidate{highSev, medSev, lowSev}}
	summary := report.Summary()
	require.Equal(t, 1, summary.High)
	require.Equal(t, 1, summary.Medium)
	require.Equal(t, 1, summary.Low)

	recs := GetRecommendations(report)
	require.Contains(t, recs[0], "URGENT")

	foundTop := false
	for _, r := range recs {
		if len(r) >= len("Top suspect") && r[:len("Top suspect")] == "Top suspect" {
			foundTop = true
		}
	}
	require.True(t, foundTop)
}

func TestSeverity_AlwaysInRange(t *testing.T) {
	c := Candidate{InstanceCount: 1 << 40, TotalSize: 1 << 40, Type: TypeWindowBased}
	sev := c.Severity()
	require.GreaterOrEqual(t, sev, 0)
	require.LessOrEqual(t, sev, 100)
}

func TestDetect_ReentrantGuardReturnsLastReport(t *testing.T) {
	d := New(DefaultConfig(), 50)
	d.Start()

	reg := registry.New(100000)
	for i := uint64(1); i <= 200; i++ {
		reg.Track(newRec(i, "Loud", 10, 0, "s"))
	}

	var nestedResult *Report

	d.AddListener(func(r *Report) {
		nestedResult = d.Detect(reg, window.New(10), 0)
	})

	first := d.Detect(reg, window.New(10), 0)
	require.NotNil(t, first)
	require.NotNil(t, nestedResult)
	require.Equal(t, first.ReportID, nestedResult.ReportID)
}
