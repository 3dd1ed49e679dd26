package analyzer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhao666666/java-memory-analyzer/internal/config"
	"github.com/zhao666666/java-memory-analyzer/internal/queue"
	"github.com/zhao666666/java-memory-analyzer/internal/record"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.CleanupIntervalMs = 50
	cfg.MaxTrackedObjects = 3

	return cfg
}

func TestAnalyzer_BasicRoundTrip(t *testing.T) {
	a := New(config.Default())

	rec := &record.Record{ObjectID: 1, ClassName: "C", SizeBytes: 100, TimestampMs: 1000, AllocationSite: "C.f(C.java:10)"}
	a.RecordAllocation(rec)

	require.Equal(t, uint64(1), a.Registry().TrackedCount())

	stats := a.Registry().GetClassStatistics()
	require.Equal(t, uint64(1), stats["C"].InstanceCount)
	require.Equal(t, uint64(100), stats["C"].TotalSize)

	siteStats := a.Registry().GetSiteStatistics()
	require.Equal(t, uint64(1), siteStats["C.f(C.java:10)"].AllocationCount)

	a.Registry().Untrack(1)
	require.Equal(t, uint64(0), a.Registry().TrackedCount())

	siteStats = a.Registry().GetSiteStatistics()
	require.Equal(t, uint64(1), siteStats["C.f(C.java:10)"].AllocationCount)
}

func TestAnalyzer_StartStopIdempotent(t *testing.T) {
	a := New(config.Default())

	a.Start(context.Background())
	require.True(t, a.IsAnalyzing())
	a.Start(context.Background()) // idempotent

	a.Stop()
	require.False(t, a.IsAnalyzing())
	a.Stop() // idempotent
}

func TestAnalyzer_EventuallyProcessesQueuedAllocation(t *testing.T) {
	a := New(config.Default())
	a.Start(context.Background())
	defer a.Stop()

	ev := &queue.Event{Kind: queue.KindAlloc, Tag: 7, ClassName: "Queued", Size: 10, TimestampMs: 1}
	a.Push(ev)

	require.Eventually(t, func() bool {
		return a.Registry().IsTracked(7)
	}, time.Second, 5*time.Millisecond)
}

func TestAnalyzer_TakeSnapshotAndCompare(t *testing.T) {
	a := New(config.Default())

	s1 := a.TakeSnapshot()

	for i := uint64(0); i < 50; i++ {
		a.RecordAllocation(&record.Record{ObjectID: 100 + i, ClassName: "Leaky", SizeBytes: 1024, TimestampMs: 2000})
	}

	s2 := a.TakeSnapshot()

	require.Less(t, s1.ID, s2.ID)

	diff, ok := a.CompareSnapshots(s1.ID, s2.ID)
	require.True(t, ok)
	require.Equal(t, int64(50), diff.ClassDiffs["Leaky"].InstanceDelta)
	require.Equal(t, int64(51200), diff.ClassDiffs["Leaky"].SizeDelta)
	require.Len(t, diff.NewAllocations, 50)
	require.Empty(t, diff.FreedAllocations)
}

func TestAnalyzer_CompareSnapshotsUnknownID(t *testing.T) {
	a := New(config.Default())

	_, ok := a.CompareSnapshots(999999, 999998)
	require.False(t, ok)
}

func TestAnalyzer_ClearResetsEverything(t *testing.T) {
	a := New(config.Default())
	a.RecordAllocation(&record.Record{ObjectID: 1, ClassName: "C", SizeBytes: 10, TimestampMs: 1})

	a.Clear()

	require.Equal(t, uint64(0), a.Registry().TrackedCount())
	require.Empty(t, a.Registry().GetClassStatistics())
	require.Empty(t, a.GetRecentAllocations(0))
}

func TestAnalyzer_CleanupEvictsOverCap(t *testing.T) {
	a := New(testConfig())
	a.Start(context.Background())
	defer a.Stop()

	for i := uint64(1); i <= 4; i++ {
		a.RecordAllocation(&record.Record{ObjectID: i, ClassName: "C", SizeBytes: 1, TimestampMs: int64(i * 1000)})
	}

	require.Eventually(t, func() bool {
		return a.Registry().TrackedCount() == 3
	}, time.Second, 5*time.Millisecond)

	require.False(t, a.Registry().IsTracked(1))
	require.True(t, a.Registry().IsTracked(4))
}

func TestAnalyzer_RegisterUnregisterAndIngest(t *testing.T) {
	a := New(config.Default())
	prev := Register(a)
	require.Nil(t, prev)

	Ingest(&record.Record{ObjectID: 42, ClassName: "Global", SizeBytes: 5, TimestampMs: 1})
	require.True(t, a.Registry().IsTracked(42))

	Unregister(a)
	require.Nil(t, Current())

	// Ingest with nothing registered is a no-op, not a panic.
	Ingest(&record.Record{ObjectID: 43, ClassName: "Global", SizeBytes: 5, TimestampMs: 1})
}
