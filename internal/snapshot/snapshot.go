// Package snapshot implements the immutable point-in-time heap view and
// its diff against another snapshot (spec.md 4.E).
package snapshot

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/zhao666666/java-memory-analyzer/internal/record"
	"github.com/zhao666666/java-memory-analyzer/internal/registry"
)

var nextID uint64 // monotonically increasing across the process

// NextID allocates the next strictly-increasing snapshot id; New stamps
// every Snapshot with it. Leak Reports use their own counter in
// internal/leak.
func NextID() uint64 { return atomic.AddUint64(&nextID, 1) }

// HeapUsage is the runtime-provided heap totals a Snapshot captures.
type HeapUsage struct {
	Used      uint64
	Committed uint64
	Max       uint64
}

// Snapshot is an immutable point-in-time view. Once constructed it is
// shared by read-only reference; nothing in this package mutates a
// Snapshot after New returns it.
type Snapshot struct {
	ID                 uint64
	TimestampMs        int64
	CapturingThreadID  uint64
	CapturingThread    string
	Heap               HeapUsage
	ClassStats         map[string]registry.ClassStats
	Allocations        []*record.Record
}

// New builds a fully-populated Snapshot. classStats and allocations are
// copied so later mutation of the registry's live state cannot be
// observed through the returned Snapshot.
func New(timestampMs int64, threadID uint64, threadName string, heap HeapUsage,
	classStats map[string]registry.ClassStats, allocations []*record.Record,
) *Snapshot {
	csCopy := make(map[string]registry.ClassStats, len(classStats))
	for k, v := range classStats {
		csCopy[k] = v
	}

	allocCopy := make([]*record.Record, len(allocations))
	copy(allocCopy, allocations)

	return &Snapshot{
		ID:                NextID(),
		TimestampMs:       timestampMs,
		CapturingThreadID: threadID,
		CapturingThread:   threadName,
		Heap:              heap,
		ClassStats:        csCopy,
		Allocations:       allocCopy,
	}
}

// ClassDelta is one class's contribution to a Diff.
type ClassDelta struct {
	InstanceDelta int64
	SizeDelta     int64
}

// Diff is the result of comparing a base snapshot B against a later
// snapshot C (spec.md 4.E / 4.E's Snapshot Diff entity).
type Diff struct {
	TimeDeltaMs      int64
	HeapDelta        int64
	ClassDiffs       map[string]ClassDelta
	NewAllocations   []*record.Record
	FreedAllocations []*record.Record
}

// Compare computes the Diff between b (base, older) and c (current).
// TimeDeltaMs is c.TimestampMs - b.TimestampMs and is only non-negative
// when callers compare snapshots in chronological order, matching
// spec.md 8's "S1 older than S2" testable property.
func Compare(b, c *Snapshot) *Diff {
	classDiffs := make(map[string]ClassDelta)

	for name, bs := range b.ClassStats {
		cs := c.ClassStats[name] // zero value if class is gone in c
		classDiffs[name] = ClassDelta{
			InstanceDelta: int64(cs.InstanceCount) - int64(bs.InstanceCount),
			SizeDelta:     int64(cs.TotalSize) - int64(bs.TotalSize),
		}
	}

	for name, cs := range c.ClassStats {
		if _, present := b.ClassStats[name]; present {
			continue
		}
		// new class: full delta, per spec.md 3
		classDiffs[name] = ClassDelta{
			InstanceDelta: int64(cs.InstanceCount),
			SizeDelta:     int64(cs.TotalSize),
		}
	}

	baseIDs := make(map[uint64]*record.Record, len(b.Allocations))
	for _, r := range b.Allocations {
		baseIDs[r.ObjectID] = r
	}

	curIDs := make(map[uint64]*record.Record, len(c.Allocations))
	for _, r := range c.Allocations {
		curIDs[r.ObjectID] = r
	}

	var newAllocs, freedAllocs []*record.Record

	for id, r := range curIDs {
		if _, present := baseIDs[id]; !present {
			newAllocs = append(newAllocs, r)
		}
	}

	for id, r := range baseIDs {
		if _, present := curIDs[id]; !present {
			freedAllocs = append(freedAllocs, r)
		}
	}

	return &Diff{
		TimeDeltaMs:      c.TimestampMs - b.TimestampMs,
		HeapDelta:        int64(c.Heap.Used) - int64(b.Heap.Used),
		ClassDiffs:       classDiffs,
		NewAllocations:   newAllocs,
		FreedAllocations: freedAllocs,
	}
}

// PotentialLeak is one class whose instance_delta meets a growth filter.
type PotentialLeak struct {
	ClassName     string
	InstanceDelta int64
	SizeDelta     int64
}

// PotentialLeaks filters d's class deltas to those with InstanceDelta >=
// minGrowth, sorted descending by InstanceDelta.
func (d *Diff) PotentialLeaks(minGrowth int64) []PotentialLeak {
	out := make([]PotentialLeak, 0)

	for name, delta := range d.ClassDiffs {
		if delta.InstanceDelta >= minGrowth {
			out = append(out, PotentialLeak{ClassName: name, InstanceDelta: delta.InstanceDelta, SizeDelta: delta.SizeDelta})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].InstanceDelta > out[j].InstanceDelta })

	return out
}

// History is an append-with-oldest-eviction list of Snapshots protected by
// a single writer lock, matching the teacher's MetricsHistory pattern
// (runtime/metrics.go) generalized to Snapshot's retention rule (spec.md
// 3: at most 100 entries, oldest evicted first). Readers take the RLock
// only long enough to copy or scan the list of snapshot pointers, so a
// concurrent snapshot write never blocks a reader beyond that.
type History struct {
	mu    sync.RWMutex
	cap   int
	items []*Snapshot
}

// NewHistory creates a history bounded at capacity entries.
func NewHistory(capacity int) *History {
	return &History{cap: capacity}
}

// Append adds snap, evicting the oldest entry if over capacity.
func (h *History) Append(snap *Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items = append(h.items, snap)

	if h.cap > 0 && len(h.items) > h.cap {
		h.items = h.items[len(h.items)-h.cap:]
	}
}

// All returns an immutable copy of the history list in insertion order
// (oldest first).
func (h *History) All() []*Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Snapshot, len(h.items))
	copy(out, h.items)

	return out
}

// Latest returns the most recently appended Snapshot, or nil if empty.
func (h *History) Latest() *Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.items) == 0 {
		return nil
	}

	return h.items[len(h.items)-1]
}

// Get returns the snapshot with the given id, if still retained.
func (h *History) Get(id uint64) (*Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.items {
		if s.ID == id {
			return s, true
		}
	}

	return nil, false
}
