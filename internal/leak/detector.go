package leak

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/zhao666666/java-memory-analyzer/internal/record"
	"github.com/zhao666666/java-memory-analyzer/internal/registry"
	"github.com/zhao666666/java-memory-analyzer/internal/window"
)

var nextReportID uint64

// Config holds the detector's thresholds (spec.md 4.G / 6 defaults).
type Config struct {
	AgeThresholdMs  int64
	GrowthThreshold uint64
	WindowSize      int
}

// DefaultConfig returns the spec's stated defaults.
func DefaultConfig() Config {
	return Config{AgeThresholdMs: 60000, GrowthThreshold: 100, WindowSize: 10}
}

// Listener is notified synchronously after a non-empty report is appended
// to history (spec.md 6's Listener API: on_leak_detected).
type Listener func(*Report)

// Detector runs the three detection strategies over a Registry and
// Window analyzer, grounded on the teacher's AlertManager pattern
// (runtime/metrics.go: rule evaluation -> active alert -> history ->
// callback fan-out) restructured around leak candidates.
type Detector struct {
	cfg Config
	log *logrus.Entry

	mu         sync.Mutex
	detecting  bool
	inProgress bool

	detectionCount uint64

	listenersMu sync.RWMutex
	listeners   []Listener

	history *History
}

// New creates a Detector with cfg and a report history bounded at
// historyCap (spec.md 6 default: 50).
func New(cfg Config, historyCap int) *Detector {
	return &Detector{
		cfg:     cfg,
		log:     logrus.WithField("component", "leak_detector"),
		history: NewHistory(historyCap),
	}
}

// Start flips the detecting flag on; Detect is a no-op while detecting is
// false.
func (d *Detector) Start() {
	d.mu.Lock()
	d.detecting = true
	d.mu.Unlock()
}

// Stop flips the detecting flag off. A detection already in flight
// completes normally (spec.md 5).
func (d *Detector) Stop() {
	d.mu.Lock()
	d.detecting = false
	d.mu.Unlock()
}

// IsDetecting reports the current detecting flag.
func (d *Detector) IsDetecting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.detecting
}

// AddListener registers fn to be invoked after every non-empty report.
func (d *Detector) AddListener(fn Listener) {
	d.listenersMu.Lock()
	d.listeners = append(d.listeners, fn)
	d.listenersMu.Unlock()
}

// History returns the bounded report history.
func (d *Detector) History() *History { return d.history }

// DetectionCount returns the cumulative number of non-empty detect() runs.
func (d *Detector) DetectionCount() uint64 { return atomic.LoadUint64(&d.detectionCount) }

// Detect runs the three strategies and returns the resulting report.
// Returns nil when detecting is false ("not detecting", spec.md 7).
// A detection already in flight on this Detector (e.g. a listener calling
// back into Detect) returns the last report instead of re-running —
// spec.md 9's listener cycle guard.
func (d *Detector) Detect(reg *registry.Registry, win *window.Analyzer, nowMs int64) *Report {
	d.mu.Lock()
	if !d.detecting {
		d.mu.Unlock()
		return nil
	}

	if d.inProgress {
		d.mu.Unlock()
		return d.history.Latest()
	}

	d.inProgress = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.inProgress = false
		d.mu.Unlock()
	}()

	var candidates []Candidate

	candidates = append(candidates, d.ageBasedStrategy(reg, nowMs)...)
	candidates = append(candidates, d.growthBasedStrategy(reg, nowMs)...)
	candidates = append(candidates, d.windowBasedStrategy(reg, win, nowMs)...)

	sortCandidatesBySizeThenSeverity(candidates)

	report := &Report{
		ReportID:          atomic.AddUint64(&nextReportID, 1),
		TimestampMs:       nowMs,
		Candidates:        candidates,
		DetectionSequence: d.DetectionCount() + 1,
	}

	if len(candidates) == 0 {
		return report
	}

	d.history.Append(report)
	atomic.AddUint64(&d.detectionCount, 1)

	d.notifyListeners(report)

	return report
}

func (d *Detector) notifyListeners(report *Report) {
	d.listenersMu.RLock()
	listeners := make([]Listener, len(d.listeners))
	copy(listeners, d.listeners)
	d.listenersMu.RUnlock()

	for _, fn := range listeners {
		d.invokeListener(fn, report)
	}
}

// invokeListener calls fn, catching a panic so one bad listener cannot
// disrupt detection (spec.md 5/7: "listener errors are swallowed, not
// propagated").
func (d *Detector) invokeListener(fn Listener, report *Report) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("panic", r).Warn("leak listener panicked; ignoring")
		}
	}()

	fn(report)
}

func (d *Detector) ageBasedStrategy(reg *registry.Registry, nowMs int64) []Candidate {
	old := reg.GetOlderThan(nowMs, d.cfg.AgeThresholdMs)
	if len(old) == 0 {
		return nil
	}

	byClass := make(map[string][]*record.Record)
	for _, r := range old {
		byClass[r.ClassName] = append(byClass[r.ClassName], r)
	}

	var out []Candidate

	for class, recs := range byClass {
		if uint64(len(recs)) < d.cfg.GrowthThreshold {
			continue
		}

		var totalSize uint64
		for _, r := range recs {
			totalSize += r.SizeBytes
		}

		out = append(out, Candidate{
			ClassName:      class,
			InstanceCount:  uint64(len(recs)),
			TotalSize:      totalSize,
			Type:           TypeAgeBased,
			AllocationSite: recs[0].AllocationSite,
			Samples:        sampleOf(recs),
			Description:    describeAgeBased(len(recs), d.cfg.AgeThresholdMs),
			DetectedAtMs:   nowMs,
		})
	}

	return out
}

func (d *Detector) growthBasedStrategy(reg *registry.Registry, nowMs int64) []Candidate {
	classStats := reg.GetClassStatistics()

	var out []Candidate

	for class, stats := range classStats {
		if stats.InstanceCount < 2*d.cfg.GrowthThreshold {
			continue
		}

		recs := reg.GetByClass(class)
		site := mostFrequentSite(recs)

		out = append(out, Candidate{
			ClassName:      class,
			InstanceCount:  stats.InstanceCount,
			TotalSize:      stats.TotalSize,
			Type:           TypeGrowthBased,
			AllocationSite: site,
			Samples:        sampleOf(recs),
			Description:    describeGrowthBased(class, stats.InstanceCount),
			DetectedAtMs:   nowMs,
		})
	}

	return out
}

func (d *Detector) windowBasedStrategy(reg *registry.Registry, win *window.Analyzer, nowMs int64) []Candidate {
	classStats := reg.GetClassStatistics()

	sampleMap := make(map[string]window.Sample, len(classStats))
	for class, stats := range classStats {
		sampleMap[class] = window.Sample{InstanceCount: stats.InstanceCount, TotalSize: stats.TotalSize}
	}

	winStats := win.Analyze(sampleMap)

	var out []Candidate

	for class, ws := range winStats {
		if !ws.IsConsistentGrowth || ws.GrowthCount < 3 {
			continue
		}

		cur, present := classStats[class]
		if !present || cur.InstanceCount < d.cfg.GrowthThreshold {
			continue
		}

		recs := reg.GetByClass(class)
		site := mostFrequentSite(recs)

		out = append(out, Candidate{
			ClassName:      class,
			InstanceCount:  cur.InstanceCount,
			TotalSize:      cur.TotalSize,
			Type:           TypeWindowBased,
			AllocationSite: site,
			Samples:        sampleOf(recs),
			Description:    describeWindowBased(ws.GrowthCount, ws.TotalGrowth),
			DetectedAtMs:   nowMs,
		})
	}

	return out
}

// mostFrequentSite returns the allocation site occurring most often across
// recs, breaking ties by first encountered (iteration order of recs).
func mostFrequentSite(recs []*record.Record) string {
	counts := make(map[string]int)
	order := make([]string, 0)

	for _, r := range recs {
		if _, seen := counts[r.AllocationSite]; !seen {
			order = append(order, r.AllocationSite)
		}

		counts[r.AllocationSite]++
	}

	best := "unknown"
	bestCount := -1

	for _, site := range order {
		if counts[site] > bestCount {
			bestCount = counts[site]
			best = site
		}
	}

	return best
}
