// Package gcmonitor polls runtime heap totals and collection counters at
// a fixed cadence for snapshot construction and report metadata (spec.md
// 4.I). It backs its defaults with real process/host memory via gopsutil
// when no native collector feed from the target runtime is attached.
package gcmonitor

import (
	"context"
	"os"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"
)

// PollInterval is the fixed cadence spec.md 4.I mandates.
const PollInterval = 500 * time.Millisecond

// HeapUsage mirrors snapshot.HeapUsage so callers don't need to import
// the snapshot package to read a monitor sample (kept as a distinct type
// to avoid a dependency cycle: snapshot does not need to know about the
// monitor).
type HeapUsage struct {
	Used      uint64
	Committed uint64
	Max       uint64
}

// CollectorStats is the cumulative (count, time) pair spec.md 4.J
// describes for a single collector, plus the derived average pause.
type CollectorStats struct {
	CollectionCount       uint64
	CollectionTimeMs      uint64
	LastCollectionTimeMs  uint64
}

// AvgPauseMs returns CollectionTimeMs/CollectionCount, or 0 when
// CollectionCount is 0.
func (s CollectorStats) AvgPauseMs() float64 {
	if s.CollectionCount == 0 {
		return 0
	}

	return float64(s.CollectionTimeMs) / float64(s.CollectionCount)
}

// Monitor polls heap usage and GC/collector stats on PollInterval. If the
// host process metrics are unavailable it reports zeros and continues
// (spec.md 7: "missing runtime metric" is a silent, recoverable failure).
type Monitor struct {
	log *logrus.Entry

	heap atomic.Value // stores HeapUsage

	mu    sync.Mutex
	stats CollectorStats

	proc *process.Process

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Monitor. Process metrics are looked up lazily on first
// poll so construction never fails.
func New() *Monitor {
	m := &Monitor{log: logrus.WithField("component", "gcmonitor")}
	m.heap.Store(HeapUsage{})

	return m
}

// Start begins the 500ms poll loop. Idempotent: calling Start while
// already running is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		m.loop(ctx)
	}()
}

// Stop signals the poll loop to exit and waits up to 500ms for it to
// join, per spec.md 5's bounded shutdown wait.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		m.log.Warn("gc monitor did not stop within shutdown budget")
	}

	m.cancel = nil
}

func (m *Monitor) loop(ctx context.Context) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

func (m *Monitor) poll() {
	m.pollHeap()
	m.pollCollector()
}

func (m *Monitor) pollHeap() {
	used, committed, maxBytes := m.readHostMemory()
	m.heap.Store(HeapUsage{Used: used, Committed: committed, Max: maxBytes})
}

// readHostMemory prefers the current process's RSS (via gopsutil) as
// "used" and the host's total memory as "max"; any gopsutil failure
// degrades to zeros rather than erroring, per spec.md 7.
func (m *Monitor) readHostMemory() (used, committed, maxBytes uint64) {
	if m.proc == nil {
		if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
			m.proc = p
		}
	}

	if m.proc != nil {
		if mi, err := m.proc.MemoryInfo(); err == nil && mi != nil {
			used = mi.RSS
			committed = mi.VMS
		} else {
			m.log.WithField("err", err).Debug("process memory info unavailable; reporting zero")
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		maxBytes = vm.Total
	} else {
		m.log.WithField("err", err).Debug("host memory info unavailable; reporting zero")
	}

	return used, committed, maxBytes
}

// pollCollector reads the Go runtime's own GC stats as the zero-dependency
// stand-in collector when no native collector feed from the target
// runtime is attached (SPEC_FULL.md 4.L).
func (m *Monitor) pollCollector() {
	var gcStats debug.GCStats
	debug.ReadGCStats(&gcStats)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.Lock()
	defer m.mu.Unlock()

	count := uint64(gcStats.NumGC)
	if count > m.stats.CollectionCount {
		m.stats.CollectionCount = count
	}

	totalPauseMs := uint64(memStats.PauseTotalNs / 1e6)
	m.stats.CollectionTimeMs = totalPauseMs

	if len(gcStats.Pause) > 0 {
		m.stats.LastCollectionTimeMs = uint64(gcStats.Pause[0].Milliseconds())
	}
}

// HeapUsage returns the most recently polled heap totals.
func (m *Monitor) HeapUsage() HeapUsage {
	return m.heap.Load().(HeapUsage)
}

// Statistics returns the most recently polled collector stats.
func (m *Monitor) Statistics() CollectorStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.stats
}
