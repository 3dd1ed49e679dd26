// Package analyzer implements the Heap Analyzer facade (spec.md 4.H): it
// owns the object registry, sliding-window analyzer, and leak detector,
// routes events from the intake queue, and exposes the core's entire
// public query surface. It is grounded on the teacher's own facade
// pattern for wiring independently-lockable subsystems behind one
// start/stop lifecycle and a bounded set of background workers.
package analyzer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/zhao666666/java-memory-analyzer/internal/agent"
	"github.com/zhao666666/java-memory-analyzer/internal/config"
	"github.com/zhao666666/java-memory-analyzer/internal/counter"
	"github.com/zhao666666/java-memory-analyzer/internal/gcmonitor"
	"github.com/zhao666666/java-memory-analyzer/internal/leak"
	"github.com/zhao666666/java-memory-analyzer/internal/queue"
	"github.com/zhao666666/java-memory-analyzer/internal/record"
	"github.com/zhao666666/java-memory-analyzer/internal/registry"
	"github.com/zhao666666/java-memory-analyzer/internal/snapshot"
	"github.com/zhao666666/java-memory-analyzer/internal/window"
)

const cleanupTickInterval = 200 * time.Millisecond

// AllocationStats is the facade's get_allocation_stats() result (spec.md
// 4.H): counts and top-10 lists by bytes.
type AllocationStats struct {
	Count        uint64
	TotalBytes   uint64
	TopClasses   []counter.Entry
	TopThreads   []counter.Entry
}

// Analyzer is the facade owning the Object Registry, the sliding-window
// analyzer, and the leak detector, plus the background workers that feed
// them (spec.md 5's named worker list).
type Analyzer struct {
	cfg config.Config
	log *logrus.Entry

	registry *registry.Registry
	window   *window.Analyzer
	detector *leak.Detector
	gcMon    *gcmonitor.Monitor

	ring    *queue.Ring
	deriver *record.SiteDeriver

	snapshots *snapshot.History

	recentMu    sync.Mutex
	recent      []*record.Record
	recentCap   int

	classBytes  *counter.Map
	threadBytes *counter.Map

	analyzing uint32 // atomic bool

	startedAtMs int64

	cancel context.CancelFunc
	group  *errgroup.Group
	done   chan struct{}
}

// New constructs an Analyzer wired to cfg. The returned Analyzer starts
// Idle; RecordAllocation is accepted right away, while events pushed onto
// the intake ring are only drained once Start launches the background
// workers.
func New(cfg config.Config) *Analyzer {
	return &Analyzer{
		cfg:         cfg,
		log:         logrus.WithField("component", "analyzer"),
		registry:    registry.New(uint64(cfg.MaxTrackedObjects)),
		window:      window.New(int(cfg.WindowSize)),
		detector:    leak.New(leak.Config{AgeThresholdMs: int64(cfg.AgeThresholdMs), GrowthThreshold: uint64(cfg.GrowthThreshold), WindowSize: int(cfg.WindowSize)}, int(cfg.ReportHistoryCap)),
		gcMon:       gcmonitor.New(),
		ring:        queue.NewRing(queue.DefaultCapacity),
		deriver:     record.NewSiteDeriver(record.DefaultFrameworkPrefixes),
		snapshots:   snapshot.NewHistory(int(cfg.SnapshotHistoryCap)),
		recentCap:   int(cfg.RecentAllocationsCap),
		classBytes:  counter.NewMap(),
		threadBytes: counter.NewMap(),
	}
}

// Start begins analysis: the GC monitor, the event-processor goroutine
// draining the intake ring, and the registry's cleanup loop. Idempotent —
// calling Start while already analyzing is a no-op (spec.md 4.H).
func (a *Analyzer) Start(ctx context.Context) {
	if !atomic.CompareAndSwapUint32(&a.analyzing, 0, 1) {
		return
	}

	a.startedAtMs = nowMs()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.gcMon.Start(ctx)
	a.detector.Start()

	g, gctx := errgroup.WithContext(ctx)
	a.group = g
	a.done = make(chan struct{})

	g.Go(func() error { a.eventProcessorLoop(gctx); return nil })
	g.Go(func() error { a.cleanupLoop(gctx); return nil })

	go func() {
		_ = a.group.Wait()
		close(a.done)
	}()
}

// Stop halts analysis: idempotent, joins background workers with a
// bounded wait (spec.md 5: "<= 500ms each").
func (a *Analyzer) Stop() {
	if !atomic.CompareAndSwapUint32(&a.analyzing, 1, 0) {
		return
	}

	a.detector.Stop()
	a.gcMon.Stop()

	if a.cancel != nil {
		a.cancel()
	}

	select {
	case <-a.done:
	case <-time.After(500 * time.Millisecond):
		a.log.Warn("analyzer workers did not stop within shutdown budget")
	}
}

// IsAnalyzing reports whether the analyzer is in the Analyzing state.
func (a *Analyzer) IsAnalyzing() bool { return atomic.LoadUint32(&a.analyzing) == 1 }

func (a *Analyzer) eventProcessorLoop(ctx context.Context) {
	var ev queue.Event

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !a.ring.Pop(&ev) {
			time.Sleep(100 * time.Microsecond)
			continue
		}

		a.dispatch(&ev)
	}
}

func (a *Analyzer) dispatch(ev *queue.Event) {
	switch ev.Kind {
	case queue.KindAlloc:
		rec := record.FromEvent(ev, a.deriver)
		a.RecordAllocation(rec)
	case queue.KindFree:
		a.registry.Untrack(ev.Tag)
	case queue.KindGCStart, queue.KindGCFinish:
		// GC boundary events carry no registry-visible state in this
		// core; the GC monitor tracks collector stats independently.
	}
}

// cleanupLoop runs the registry's eviction sweep on a fixed tick,
// matching spec.md 4.C's "dedicated worker wakes every
// cleanup_interval_ms". The loop wakes every cleanupTickInterval and runs
// the sweep once the accumulated ticks reach the configured interval
// (read once when the loop starts), so an interval shorter than one tick
// runs the sweep on every tick.
func (a *Analyzer) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupTickInterval)
	defer ticker.Stop()

	var sinceMs int64

	interval := int64(a.cfg.CleanupIntervalMs)
	if interval <= 0 {
		interval = 5000
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sinceMs += cleanupTickInterval.Milliseconds()
			if sinceMs < interval {
				continue
			}

			sinceMs = 0
			a.registry.RunCleanup()
		}
	}
}

// Push enqueues ev onto the intake ring; satisfies agent.Sink.
func (a *Analyzer) Push(ev *queue.Event) bool { return a.ring.Push(ev) }

// RecordAllocation appends rec to the bounded recent-allocations ring,
// updates per-class and per-thread byte counters, and tracks rec in the
// registry. Safe from any goroutine, and accepted whenever the analyzer
// exists regardless of the analyzing flag (DESIGN.md Open Question 2).
func (a *Analyzer) RecordAllocation(rec *record.Record) {
	a.appendRecent(rec)
	a.classBytes.Add(rec.ClassName, rec.SizeBytes)
	a.threadBytes.Add(rec.ThreadName, rec.SizeBytes)
	a.registry.Track(rec)
}

func (a *Analyzer) appendRecent(rec *record.Record) {
	a.recentMu.Lock()
	defer a.recentMu.Unlock()

	a.recent = append(a.recent, rec)

	if a.recentCap > 0 && len(a.recent) > a.recentCap {
		a.recent = a.recent[len(a.recent)-a.recentCap:]
	}
}

// GetRecentAllocations returns up to limit of the most recently recorded
// allocations, newest last.
func (a *Analyzer) GetRecentAllocations(limit int) []*record.Record {
	a.recentMu.Lock()
	defer a.recentMu.Unlock()

	n := len(a.recent)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]*record.Record, n)
	copy(out, a.recent[len(a.recent)-n:])

	return out
}

// TakeSnapshot builds a Snapshot from current registry stats, GC-monitor
// heap usage, and the recent-allocations buffer, appends it to history,
// feeds the window analyzer, and returns it (spec.md 4.H).
func (a *Analyzer) TakeSnapshot() *snapshot.Snapshot {
	classStats := a.registry.GetClassStatistics()
	heap := a.gcMon.HeapUsage()

	snap := snapshot.New(
		nowMs(),
		0, "analyzer",
		snapshot.HeapUsage{Used: heap.Used, Committed: heap.Committed, Max: heap.Max},
		classStats,
		a.GetRecentAllocations(a.recentCap),
	)

	a.snapshots.Append(snap)

	samples := make(map[string]window.Sample, len(classStats))
	for class, s := range classStats {
		samples[class] = window.Sample{InstanceCount: s.InstanceCount, TotalSize: s.TotalSize}
	}

	a.window.AddSnapshot(snap.ID, snap.TimestampMs, samples)

	return snap
}

// GetSnapshots returns the full retained snapshot history, oldest first.
func (a *Analyzer) GetSnapshots() []*snapshot.Snapshot { return a.snapshots.All() }

// GetLatestSnapshot returns the most recently taken snapshot, or nil.
func (a *Analyzer) GetLatestSnapshot() *snapshot.Snapshot { return a.snapshots.Latest() }

// CompareSnapshots returns the Diff between baseID and currentID, or
// (nil, false) if either id is not retained (spec.md 7: "not found" is an
// absent value, not an error).
func (a *Analyzer) CompareSnapshots(baseID, currentID uint64) (*snapshot.Diff, bool) {
	base, ok := a.snapshots.Get(baseID)
	if !ok {
		return nil, false
	}

	cur, ok := a.snapshots.Get(currentID)
	if !ok {
		return nil, false
	}

	return snapshot.Compare(base, cur), true
}

// GetHeapMemoryUsage returns the most recently polled heap totals.
func (a *Analyzer) GetHeapMemoryUsage() gcmonitor.HeapUsage { return a.gcMon.HeapUsage() }

// GetHeapPoolUsages returns per-pool heap usage. This core does not
// distinguish generational pools (spec.md's Non-goals exclude
// dominator/reference-chain analysis, and the event source supplies no
// per-pool breakdown), so the single "heap" pool mirrors the overall
// usage — grounded on the teacher's own single-pool fallback in its
// allocator size-class accounting.
func (a *Analyzer) GetHeapPoolUsages() map[string]gcmonitor.HeapUsage {
	return map[string]gcmonitor.HeapUsage{"heap": a.gcMon.HeapUsage()}
}

// GetGCStatistics returns the GC monitor's cumulative collector stats.
func (a *Analyzer) GetGCStatistics() gcmonitor.CollectorStats { return a.gcMon.Statistics() }

// GetAllocationStats returns counts, total bytes, and top-10 classes and
// threads by bytes (spec.md 4.H).
func (a *Analyzer) GetAllocationStats() AllocationStats {
	total := a.registry.TotalTracked()

	var totalBytes uint64
	for _, entry := range a.classBytes.GetSortedBySum(-1) {
		totalBytes += entry.Sum
	}

	return AllocationStats{
		Count:      total,
		TotalBytes: totalBytes,
		TopClasses: a.classBytes.GetSortedBySum(10),
		TopThreads: a.threadBytes.GetSortedBySum(10),
	}
}

// Detect runs the leak detector's three strategies. Returns nil if
// detection is not active.
func (a *Analyzer) Detect() *leak.Report {
	return a.detector.Detect(a.registry, a.window, nowMs())
}

// LeakHistory returns the bounded leak-report history.
func (a *Analyzer) LeakHistory() *leak.History { return a.detector.History() }

// AddLeakListener registers fn to run after every non-empty detect().
func (a *Analyzer) AddLeakListener(fn leak.Listener) { a.detector.AddListener(fn) }

// Registry exposes the underlying Object Registry for components (such as
// the metrics exporter) that need direct read access without going
// through the facade's aggregate queries.
func (a *Analyzer) Registry() *registry.Registry { return a.registry }

// DroppedEvents returns the cumulative count of intake events dropped
// because the ring was full at Push time (spec.md 7's dropped_events
// observable).
func (a *Analyzer) DroppedEvents() uint64 { return a.ring.Dropped() }

// Clear empties the registry, window history, recent-allocations buffer,
// and counters. Legal in any state; does not itself stop analysis
// (spec.md 7: "record_allocation after clear() is legal").
func (a *Analyzer) Clear() {
	a.registry.Clear()
	a.window.Clear()

	a.recentMu.Lock()
	a.recent = nil
	a.recentMu.Unlock()

	a.classBytes.Clear()
	a.threadBytes.Clear()
}

func nowMs() int64 { return time.Now().UnixMilli() }

// handle is the process-wide "at most one live analyzer" slot (spec.md
// 9's process-wide singleton redesign note): an explicit handle rather
// than a hidden static reference. Register installs an instance with an
// atomic swap; Unregister clears it with an atomic compare-and-set.
var handle atomic.Pointer[Analyzer]

// Register installs a as the single live analyzer instance, replacing
// any previously registered one. Returns the previous instance, if any,
// so callers can stop it.
func Register(a *Analyzer) *Analyzer {
	return handle.Swap(a)
}

// Unregister clears the live-instance slot if it currently holds a.
func Unregister(a *Analyzer) {
	handle.CompareAndSwap(a, nil)
}

// Current returns the live analyzer instance, or nil if none is
// registered.
func Current() *Analyzer { return handle.Load() }

// Ingest routes rec to the single live analyzer's RecordAllocation. A
// no-op if no instance is live (spec.md 4.H's process-wide entry point).
func Ingest(rec *record.Record) {
	if a := Current(); a != nil {
		a.RecordAllocation(rec)
	}
}

// Analyzer satisfies agent.Sink through Push, which routes directly into
// the analyzer's intake ring.
var _ agent.Sink = (*Analyzer)(nil)
