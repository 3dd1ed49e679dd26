// Package registry implements the Object Registry (tracker): a concurrent
// object-id -> Allocation Record map with derived per-class and per-site
// aggregates, bounded by an LRU-by-age eviction policy (spec.md 4.C).
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/zhao666666/java-memory-analyzer/internal/record"
)

const shardCount = 32

// ClassStats mirrors spec.md's class_stats entry: instance_count,
// total_size_bytes, and the derived avg_size.
type ClassStats struct {
	InstanceCount uint64
	TotalSize     uint64
}

// AvgSize returns TotalSize/InstanceCount, or 0 when InstanceCount is 0.
func (s ClassStats) AvgSize() float64 {
	if s.InstanceCount == 0 {
		return 0
	}

	return float64(s.TotalSize) / float64(s.InstanceCount)
}

// SiteStats mirrors spec.md's site_stats entry. Unlike ClassStats this is
// append-only: it is never decremented by untrack or eviction, per the
// spec's "cumulative allocation pressure" semantics (DESIGN.md Open
// Question 1).
type SiteStats struct {
	AllocationCount uint64
	TotalSize       uint64
}

// AvgSize returns TotalSize/AllocationCount, or 0 when AllocationCount is 0.
func (s SiteStats) AvgSize() float64 {
	if s.AllocationCount == 0 {
		return 0
	}

	return float64(s.TotalSize) / float64(s.AllocationCount)
}

type classAgg struct {
	mu   sync.Mutex
	inst uint64
	size uint64
}

func (a *classAgg) add(size uint64) {
	a.mu.Lock()
	a.inst++
	a.size += size
	a.mu.Unlock()
}

// remove decrements the aggregate for one freed instance, clamped at zero,
// and reports whether the aggregate is now empty (caller should drop it).
func (a *classAgg) remove(size uint64) (empty bool) {
	a.mu.Lock()
	if a.inst > 0 {
		a.inst--
	}

	if a.size >= size {
		a.size -= size
	} else {
		a.size = 0
	}

	empty = a.inst == 0
	a.mu.Unlock()

	return empty
}

func (a *classAgg) snapshot() ClassStats {
	a.mu.Lock()
	s := ClassStats{InstanceCount: a.inst, TotalSize: a.size}
	a.mu.Unlock()

	return s
}

type siteAgg struct {
	count uint64
	size  uint64
}

func (a *siteAgg) add(size uint64) {
	atomic.AddUint64(&a.count, 1)
	atomic.AddUint64(&a.size, size)
}

func (a *siteAgg) snapshot() SiteStats {
	return SiteStats{
		AllocationCount: atomic.LoadUint64(&a.count),
		TotalSize:       atomic.LoadUint64(&a.size),
	}
}

type shard struct {
	mu      sync.RWMutex
	objects map[uint64]*record.Record
}

// Registry is the concurrent object-id -> Record map plus derived
// aggregates. Readers and writers on different object-id shards proceed
// without contending; a per-class aggregate mutex keeps
// instance_count and total_size mutually consistent (never visible to a
// reader as instance_count=5, total_size=0 mid-update), per spec.md 4.C's
// concurrency requirement.
type Registry struct {
	shards [shardCount]shard

	classMu sync.RWMutex
	classes map[string]*classAgg

	siteMu sync.RWMutex
	sites  map[string]*siteAgg

	trackedCount uint64
	totalTracked uint64
	totalFreed   uint64
	evicted      uint64

	maxTracked uint64

	log *logrus.Entry
}

// New creates a registry with the given eviction cap (spec.md 6 default:
// 100,000). A cap of 0 means "no cap".
func New(maxTrackedObjects uint64) *Registry {
	r := &Registry{
		classes:    make(map[string]*classAgg),
		sites:      make(map[string]*siteAgg),
		maxTracked: maxTrackedObjects,
		log:        logrus.WithField("component", "registry"),
	}

	for i := range r.shards {
		r.shards[i].objects = make(map[uint64]*record.Record)
	}

	return r
}

func (r *Registry) shardFor(id uint64) *shard {
	return &r.shards[id%shardCount]
}

func (r *Registry) classAgg(name string) *classAgg {
	r.classMu.RLock()
	a, ok := r.classes[name]
	r.classMu.RUnlock()

	if ok {
		return a
	}

	r.classMu.Lock()
	defer r.classMu.Unlock()

	if a, ok = r.classes[name]; ok {
		return a
	}

	a = &classAgg{}
	r.classes[name] = a

	return a
}

func (r *Registry) siteAggFor(site string) *siteAgg {
	r.siteMu.RLock()
	a, ok := r.sites[site]
	r.siteMu.RUnlock()

	if ok {
		return a
	}

	r.siteMu.Lock()
	defer r.siteMu.Unlock()

	if a, ok = r.sites[site]; ok {
		return a
	}

	a = &siteAgg{}
	r.sites[site] = a

	return a
}

// Track inserts rec if its ObjectID isn't already present. A duplicate
// ObjectID is a no-op, per spec.md 4.C.
func (r *Registry) Track(rec *record.Record) {
	sh := r.shardFor(rec.ObjectID)

	sh.mu.Lock()
	if _, exists := sh.objects[rec.ObjectID]; exists {
		sh.mu.Unlock()
		return
	}

	sh.objects[rec.ObjectID] = rec
	sh.mu.Unlock()

	r.classAgg(rec.ClassName).add(rec.SizeBytes)
	r.siteAggFor(rec.AllocationSite).add(rec.SizeBytes)

	atomic.AddUint64(&r.trackedCount, 1)
	atomic.AddUint64(&r.totalTracked, 1)
}

// Untrack removes the record for id if present, decrementing class stats
// (never site stats) and incrementing total_freed.
func (r *Registry) Untrack(id uint64) (rec *record.Record, ok bool) {
	sh := r.shardFor(id)

	sh.mu.Lock()
	rec, ok = sh.objects[id]
	if ok {
		delete(sh.objects, id)
	}
	sh.mu.Unlock()

	if !ok {
		return nil, false
	}

	if empty := r.classAgg(rec.ClassName).remove(rec.SizeBytes); empty {
		r.dropClassIfStillEmpty(rec.ClassName)
	}

	atomic.AddUint64(&r.totalFreed, 1)
	decrementTrackedCount(&r.trackedCount)

	return rec, true
}

func decrementTrackedCount(counter *uint64) {
	for {
		old := atomic.LoadUint64(counter)
		if old == 0 {
			return
		}

		if atomic.CompareAndSwapUint64(counter, old, old-1) {
			return
		}
	}
}

// Get returns the record for id, if tracked.
func (r *Registry) Get(id uint64) (*record.Record, bool) {
	sh := r.shardFor(id)

	sh.mu.RLock()
	rec, ok := sh.objects[id]
	sh.mu.RUnlock()

	return rec, ok
}

// IsTracked reports whether id is currently tracked.
func (r *Registry) IsTracked(id uint64) bool {
	_, ok := r.Get(id)
	return ok
}

// GetAll returns a snapshot slice of every currently tracked record.
func (r *Registry) GetAll() []*record.Record {
	out := make([]*record.Record, 0, atomic.LoadUint64(&r.trackedCount))

	for i := range r.shards {
		sh := &r.shards[i]

		sh.mu.RLock()
		for _, rec := range sh.objects {
			out = append(out, rec)
		}
		sh.mu.RUnlock()
	}

	return out
}

// GetByClass returns every tracked record whose ClassName matches name.
func (r *Registry) GetByClass(name string) []*record.Record {
	var out []*record.Record

	for _, rec := range r.GetAll() {
		if rec.ClassName == name {
			out = append(out, rec)
		}
	}

	return out
}

// GetAfter returns every tracked record with TimestampMs >= ts.
func (r *Registry) GetAfter(ts int64) []*record.Record {
	var out []*record.Record

	for _, rec := range r.GetAll() {
		if rec.TimestampMs >= ts {
			out = append(out, rec)
		}
	}

	return out
}

// GetOlderThan returns every tracked record whose age (nowMs - TimestampMs)
// is at least ageMs.
func (r *Registry) GetOlderThan(nowMs int64, ageMs int64) []*record.Record {
	var out []*record.Record

	for _, rec := range r.GetAll() {
		if nowMs-rec.TimestampMs >= ageMs {
			out = append(out, rec)
		}
	}

	return out
}

// GetClassStatistics returns a snapshot copy of all class aggregates.
func (r *Registry) GetClassStatistics() map[string]ClassStats {
	r.classMu.RLock()
	defer r.classMu.RUnlock()

	out := make(map[string]ClassStats, len(r.classes))
	for name, agg := range r.classes {
		out[name] = agg.snapshot()
	}

	return out
}

// GetSiteStatistics returns a snapshot copy of all site aggregates.
func (r *Registry) GetSiteStatistics() map[string]SiteStats {
	r.siteMu.RLock()
	defer r.siteMu.RUnlock()

	out := make(map[string]SiteStats, len(r.sites))
	for site, agg := range r.sites {
		out[site] = agg.snapshot()
	}

	return out
}

// TopEntry pairs a class or site name with its total size, for top-N lists.
type TopEntry struct {
	Name      string
	TotalSize uint64
}

// GetTopClasses returns up to limit classes sorted by total_size desc.
func (r *Registry) GetTopClasses(limit int) []TopEntry {
	stats := r.GetClassStatistics()
	return topByTotalSize(stats, limit, func(s ClassStats) uint64 { return s.TotalSize })
}

// GetTopSites returns up to limit sites sorted by total_size desc.
func (r *Registry) GetTopSites(limit int) []TopEntry {
	stats := r.GetSiteStatistics()
	return topByTotalSize(stats, limit, func(s SiteStats) uint64 { return s.TotalSize })
}

func topByTotalSize[S any](m map[string]S, limit int, size func(S) uint64) []TopEntry {
	out := make([]TopEntry, 0, len(m))
	for name, s := range m {
		out = append(out, TopEntry{Name: name, TotalSize: size(s)})
	}

	sortTopEntries(out)

	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}

	return out
}

func sortTopEntries(entries []TopEntry) {
	// simple insertion sort is fine at the scale top-N callers use;
	// the only caller-visible contract is "sorted desc by TotalSize"
	for i := 1; i < len(entries); i++ {
		j := i
		for j > 0 && entries[j-1].TotalSize < entries[j].TotalSize {
			entries[j-1], entries[j] = entries[j], entries[j-1]
			j--
		}
	}
}

// TrackedCount returns the number of currently live entries.
func (r *Registry) TrackedCount() uint64 { return atomic.LoadUint64(&r.trackedCount) }

// TotalTracked returns the cumulative number of successful Track inserts.
func (r *Registry) TotalTracked() uint64 { return atomic.LoadUint64(&r.totalTracked) }

// TotalFreed returns the cumulative number of Untrack removals.
func (r *Registry) TotalFreed() uint64 { return atomic.LoadUint64(&r.totalFreed) }

// Evicted returns the cumulative number of cleanup-worker evictions.
func (r *Registry) Evicted() uint64 { return atomic.LoadUint64(&r.evicted) }

// Clear empties the registry and all derived aggregates.
func (r *Registry) Clear() {
	for i := range r.shards {
		r.shards[i].mu.Lock()
		r.shards[i].objects = make(map[uint64]*record.Record)
		r.shards[i].mu.Unlock()
	}

	r.classMu.Lock()
	r.classes = make(map[string]*classAgg)
	r.classMu.Unlock()

	r.siteMu.Lock()
	r.sites = make(map[string]*siteAgg)
	r.siteMu.Unlock()

	atomic.StoreUint64(&r.trackedCount, 0)
	atomic.StoreUint64(&r.totalTracked, 0)
	atomic.StoreUint64(&r.totalFreed, 0)
	atomic.StoreUint64(&r.evicted, 0)
}

// evictOldest finds and removes the single oldest-timestamp entry across
// all shards, decrementing class stats (not site stats) and the evicted
// counter. Returns false if the registry is empty.
func (r *Registry) evictOldest() bool {
	var (
		oldest   *record.Record
		oldestID uint64
		found    bool
	)

	for i := range r.shards {
		sh := &r.shards[i]

		sh.mu.RLock()
		for id, rec := range sh.objects {
			if !found || rec.TimestampMs < oldest.TimestampMs {
				oldest = rec
				oldestID = id
				found = true
			}
		}
		sh.mu.RUnlock()
	}

	if !found {
		return false
	}

	sh := r.shardFor(oldestID)

	sh.mu.Lock()
	rec, ok := sh.objects[oldestID]
	if ok {
		delete(sh.objects, oldestID)
	}
	sh.mu.Unlock()

	if !ok {
		return false
	}

	if empty := r.classAgg(rec.ClassName).remove(rec.SizeBytes); empty {
		r.dropClassIfStillEmpty(rec.ClassName)
	}

	decrementTrackedCount(&r.trackedCount)
	atomic.AddUint64(&r.evicted, 1)

	return true
}

// dropClassIfStillEmpty removes a class aggregate entry that was just
// observed empty, re-checking under the registry-level lock so a
// concurrent Track racing the removal isn't lost.
func (r *Registry) dropClassIfStillEmpty(class string) {
	r.classMu.Lock()
	defer r.classMu.Unlock()

	a, present := r.classes[class]
	if !present {
		return
	}

	a.mu.Lock()
	stillEmpty := a.inst == 0
	a.mu.Unlock()

	if stillEmpty {
		delete(r.classes, class)
	}
}

// RunCleanup evicts oldest entries one at a time, looping until
// TrackedCount no longer exceeds maxTracked, and returns how many it
// evicted. The cleanup worker in internal/analyzer calls it once per
// cleanup interval.
func (r *Registry) RunCleanup() (evictedThisPass int) {
	if r.maxTracked == 0 {
		return 0
	}

	for r.TrackedCount() > r.maxTracked {
		if !r.evictOldest() {
			break
		}

		evictedThisPass++
	}

	if evictedThisPass > 0 {
		r.log.WithField("count", evictedThisPass).Debug("evicted oldest entries over cap")
	}

	return evictedThisPass
}
