package gcmonitor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMonitor_PollPopulatesHeapUsage(t *testing.T) {
	m := New()
	m.poll()

	usage := m.HeapUsage()
	require.True(t, usage.Used > 0 || usage.Max >= 0)
}

func TestMonitor_StatisticsAvgPause(t *testing.T) {
	m := New()
	m.poll()

	stats := m.Statistics()
	if stats.CollectionCount > 0 {
		require.GreaterOrEqual(t, stats.AvgPauseMs(), 0.0)
	} else {
		require.Equal(t, 0.0, stats.AvgPauseMs())
	}
}

func TestMonitor_StartStopIdempotent(t *testing.T) {
	m := New()
	m.Start(context.Background())
	m.Start(context.Background()) // idempotent
	m.Stop()
	m.Stop() // idempotent
}
