package leak

import (
	"fmt"
	"sort"
	"sync"
)

// Summary is the derived grouping of a Report's candidates by severity
// band (spec.md 3: high>=70, medium in [40,70), low<40).
type Summary struct {
	Total         int
	High          int
	Medium        int
	Low           int
	TotalSize     uint64
	TotalInstances uint64
}

// Report is one detect() call's output: ordered candidates plus a
// detection sequence number.
type Report struct {
	ReportID          uint64
	TimestampMs       int64
	Candidates        []Candidate
	DetectionSequence uint64
}

// Summary computes the report's severity-band rollup.
func (r *Report) Summary() Summary {
	var s Summary

	s.Total = len(r.Candidates)

	for _, c := range r.Candidates {
		sev := c.Severity()

		switch {
		case sev >= 70:
			s.High++
		case sev >= 40:
			s.Medium++
		default:
			s.Low++
		}

		s.TotalSize += c.TotalSize
		s.TotalInstances += c.InstanceCount
	}

	return s
}

// sortCandidatesBySizeThenSeverity sorts candidates by total_size desc
// (the ordering Detect() builds the report with), breaking ties between
// equal sizes by severity desc. GetRecommendations finds the top suspect
// by scanning all candidates, so it does not rely on this order.
func sortCandidatesBySizeThenSeverity(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].TotalSize != candidates[j].TotalSize {
			return candidates[i].TotalSize > candidates[j].TotalSize
		}

		return candidates[i].Severity() > candidates[j].Severity()
	})
}

// History is the bounded, append-only list of Leak Reports (spec.md 3:
// at most 50, oldest evicted first), grounded on the same
// single-writer-lock pattern as internal/snapshot's History.
type History struct {
	mu    sync.RWMutex
	cap   int
	items []*Report
}

// NewHistory creates a report history bounded at capacity entries.
func NewHistory(capacity int) *History {
	return &History{cap: capacity}
}

// Append adds r, evicting the oldest report if over capacity.
func (h *History) Append(r *Report) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items = append(h.items, r)

	if h.cap > 0 && len(h.items) > h.cap {
		h.items = h.items[len(h.items)-h.cap:]
	}
}

// All returns an immutable copy of the report history, oldest first.
func (h *History) All() []*Report {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Report, len(h.items))
	copy(out, h.items)

	return out
}

// Latest returns the most recently appended report, or nil if empty.
func (h *History) Latest() *Report {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.items) == 0 {
		return nil
	}

	return h.items[len(h.items)-1]
}

// GetRecommendations produces human-readable guidance from a report, per
// spec.md 4.G: an urgent line if any candidate's severity >= 70, one line
// per distinct leak type present describing its typical cause, and a
// top-suspect line naming the highest-severity candidate. An empty report
// returns a single "no leaks" line.
func GetRecommendations(r *Report) []string {
	if len(r.Candidates) == 0 {
		return []string{"No leaks detected, continue monitoring."}
	}

	var recs []string

	highestSeverity := -1

	var topSuspect *Candidate

	seenTypes := make(map[Type]bool)

	for i := range r.Candidates {
		c := &r.Candidates[i]
		if c.Severity() > highestSeverity {
			highestSeverity = c.Severity()
			topSuspect = c
		}

		seenTypes[c.Type] = true
	}

	if highestSeverity >= 70 {
		recs = append(recs, fmt.Sprintf("URGENT: %d high-severity leak candidate(s) detected.", countSevereAbove(r, 70)))
	}

	if seenTypes[TypeAgeBased] {
		recs = append(recs, "Age-based: objects are surviving far longer than expected — check for missing cleanup/close calls or caches without eviction.")
	}

	if seenTypes[TypeGrowthBased] {
		recs = append(recs, "Growth-based: live instance counts for a class are unusually high — look for unbounded collections or listener registries that never unregister.")
	}

	if seenTypes[TypeWindowBased] {
		recs = append(recs, "Window-based: instance counts have grown consistently across recent snapshots — suspect a steady per-request or per-iteration accumulation.")
	}

	if topSuspect != nil {
		recs = append(recs, fmt.Sprintf("Top suspect: %s (%s, severity %d)", topSuspect.ClassName, topSuspect.Type, topSuspect.Severity()))
	}

	return recs
}

func countSevereAbove(r *Report, threshold int) int {
	n := 0

	for _, c := range r.Candidates {
		if c.Severity() >= threshold {
			n++
		}
	}

	return n
}
