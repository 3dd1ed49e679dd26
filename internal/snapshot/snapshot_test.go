package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhao666666/java-memory-analyzer/internal/record"
	"github.com/zhao666666/java-memory-analyzer/internal/registry"
)

func TestSnapshot_IDsMonotonicallyIncrease(t *testing.T) {
	s1 := New(1000, 1, "t", HeapUsage{}, nil, nil)
	s2 := New(2000, 1, "t", HeapUsage{}, nil, nil)

	require.Less(t, s1.ID, s2.ID)
}

func TestCompare_TimeDeltaAndClassDiff(t *testing.T) {
	base := New(1000, 1, "t", HeapUsage{}, map[string]registry.ClassStats{}, nil)
	cur := New(2000, 1, "t", HeapUsage{}, map[string]registry.ClassStats{
		"Leaky": {InstanceCount: 50, TotalSize: 51200},
	}, []*record.Record{
		{ObjectID: 1}, {ObjectID: 2},
	})

	diff := Compare(base, cur)

	require.Equal(t, int64(1000), diff.TimeDeltaMs)
	require.Equal(t, ClassDelta{InstanceDelta: 50, SizeDelta: 51200}, diff.ClassDiffs["Leaky"])
	require.Len(t, diff.NewAllocations, 2)
	require.Empty(t, diff.FreedAllocations)
}

func TestCompare_FreedAllocations(t *testing.T) {
	base := New(1000, 1, "t", HeapUsage{}, nil, []*record.Record{{ObjectID: 1}, {ObjectID: 2}})
	cur := New(2000, 1, "t", HeapUsage{}, nil, []*record.Record{{ObjectID: 1}})

	diff := Compare(base, cur)
	require.Len(t, diff.FreedAllocations, 1)
	require.Equal(t, uint64(2), diff.FreedAllocations[0].ObjectID)
}

func TestHistory_EvictsOldestBeyondCap(t *testing.T) {
	h := NewHistory(2)

	s1 := New(1, 0, "", HeapUsage{}, nil, nil)
	s2 := New(2, 0, "", HeapUsage{}, nil, nil)
	s3 := New(3, 0, "", HeapUsage{}, nil, nil)

	h.Append(s1)
	h.Append(s2)
	h.Append(s3)

	all := h.All()
	require.Len(t, all, 2)
	require.Equal(t, s2.ID, all[0].ID)
	require.Equal(t, s3.ID, all[1].ID)
}

func TestPotentialLeaks_FiltersAndSortsDescending(t *testing.T) {
	d := &Diff{ClassDiffs: map[string]ClassDelta{
		"A": {InstanceDelta: 5},
		"B": {InstanceDelta: 50},
		"C": {InstanceDelta: 2},
	}}

	leaks := d.PotentialLeaks(5)
	require.Len(t, leaks, 2)
	require.Equal(t, "B", leaks[0].ClassName)
	require.Equal(t, "A", leaks[1].ClassName)
}
