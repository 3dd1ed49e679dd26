package metricsexport

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/zhao666666/java-memory-analyzer/internal/analyzer"
	"github.com/zhao666666/java-memory-analyzer/internal/config"
	"github.com/zhao666666/java-memory-analyzer/internal/record"
)

func TestExporter_CollectReflectsAnalyzerState(t *testing.T) {
	a := analyzer.New(config.Default())
	a.RecordAllocation(&record.Record{ObjectID: 1, ClassName: "C", SizeBytes: 10, TimestampMs: 1})

	e := New(a)

	// 5 scalar registry metrics + 1 class_instance_count series ("C") +
	// 1 site_alloc_count series (the empty allocation site) + 3 heap
	// gauges + 3 GC counters/gauge + leak_reports_total +
	// leak_candidates_total.
	count := testutil.CollectAndCount(e)
	require.Equal(t, 15, count)
}

func TestExporter_CollectEmitsDroppedEventsAndPerKeyVectors(t *testing.T) {
	a := analyzer.New(config.Default())
	a.RecordAllocation(&record.Record{ObjectID: 1, ClassName: "C", SizeBytes: 10, TimestampMs: 1, AllocationSite: "Foo.alloc(Foo.java:1)"})

	e := New(a)

	require.NoError(t, testutil.CollectAndCompare(e, strings.NewReader(`
# HELP memanalyzer_class_instance_count Currently tracked live instance count, by class.
# TYPE memanalyzer_class_instance_count gauge
memanalyzer_class_instance_count{class="C"} 1
`), "memanalyzer_class_instance_count"))

	require.NoError(t, testutil.CollectAndCompare(e, strings.NewReader(`
# HELP memanalyzer_site_alloc_count Cumulative allocation count, by allocation site.
# TYPE memanalyzer_site_alloc_count counter
memanalyzer_site_alloc_count{site="Foo.alloc(Foo.java:1)"} 1
`), "memanalyzer_site_alloc_count"))

	require.NoError(t, testutil.CollectAndCompare(e, strings.NewReader(`
# HELP memanalyzer_dropped_events Events dropped because the intake ring was full.
# TYPE memanalyzer_dropped_events counter
memanalyzer_dropped_events 0
`), "memanalyzer_dropped_events"))
}
