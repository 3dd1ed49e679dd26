// Package leak implements the leak detector: three detection strategies
// run over the object registry and sliding-window analyzer, producing a
// severity-ranked Leak Report (spec.md 4.G).
package leak

import (
	"fmt"

	"github.com/zhao666666/java-memory-analyzer/internal/record"
)

// Type identifies which detection strategy produced a Candidate.
type Type string

const (
	TypeAgeBased       Type = "AGE_BASED"
	TypeGrowthBased    Type = "GROWTH_BASED"
	TypeWindowBased    Type = "WINDOW_BASED"
	TypeReferenceBased Type = "REFERENCE_BASED" // reserved: no strategy in this core emits it (spec.md Non-goals excludes reference-chain analysis)
)

const maxSampleRecords = 10

// Candidate is one suspected leak (one class) produced by one strategy.
type Candidate struct {
	ClassName      string
	InstanceCount  uint64
	TotalSize      uint64
	Type           Type
	AllocationSite string
	Samples        []*record.Record
	Description    string
	DetectedAtMs   int64
}

// Severity derives an integer in [0,100] from a size bucket (0-40), a
// count bucket (0-40), and a strategy-type bonus (AGE=10, GROWTH=15,
// WINDOW=20), capped at 100. Bucket thresholds are an implementation
// decision (spec.md leaves the exact buckets unspecified): see sizeBucket
// and countBucket below.
func (c Candidate) Severity() int {
	s := sizeBucket(c.TotalSize) + countBucket(c.InstanceCount) + typeBonus(c.Type)
	if s > 100 {
		s = 100
	}

	return s
}

func sizeBucket(totalSize uint64) int {
	const (
		mb = 1024 * 1024
		kb = 1024
	)

	switch {
	case totalSize >= 100*mb:
		return 40
	case totalSize >= 10*mb:
		return 30
	case totalSize >= 1*mb:
		return 20
	case totalSize >= 100*kb:
		return 10
	default:
		return 0
	}
}

func countBucket(instanceCount uint64) int {
	switch {
	case instanceCount >= 10000:
		return 40
	case instanceCount >= 1000:
		return 30
	case instanceCount >= 100:
		return 20
	case instanceCount >= 10:
		return 10
	default:
		return 0
	}
}

func typeBonus(t Type) int {
	switch t {
	case TypeAgeBased:
		return 10
	case TypeGrowthBased:
		return 15
	case TypeWindowBased:
		return 20
	default:
		return 0
	}
}

func sampleOf(records []*record.Record) []*record.Record {
	n := len(records)
	if n > maxSampleRecords {
		n = maxSampleRecords
	}

	out := make([]*record.Record, n)
	copy(out, records[:n])

	return out
}

func describeAgeBased(count int, ageThresholdMs int64) string {
	return fmt.Sprintf("Found %d objects older than %.1f seconds", count, float64(ageThresholdMs)/1000.0)
}

func describeGrowthBased(class string, count uint64) string {
	return fmt.Sprintf("Class %s has %d live instances, exceeding the growth threshold", class, count)
}

func describeWindowBased(windows int, totalGrowth uint64) string {
	return fmt.Sprintf("Consistent growth over %d windows (total growth: %d instances)", windows, totalGrowth)
}
