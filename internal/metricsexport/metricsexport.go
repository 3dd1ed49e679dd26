// Package metricsexport exposes the analyzer's registry, GC-monitor, and
// leak-detector counters over a Prometheus "/metrics" endpoint, replacing
// the teacher's hand-rolled text-exposition server
// (internal/runtime/metrics_exporter.go) with the ecosystem's own
// client library.
package metricsexport

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/zhao666666/java-memory-analyzer/internal/analyzer"
)

// Exporter registers a prometheus.Collector that, on every scrape, pulls
// a fresh snapshot of aggregate state from the analyzer facade — the same
// "collect on demand" model the teacher's MetricFunc callbacks used,
// adapted to prometheus.Collector's Describe/Collect contract.
type Exporter struct {
	a   *analyzer.Analyzer
	log *logrus.Entry

	trackedCount      *prometheus.Desc
	totalTracked      *prometheus.Desc
	totalFreed        *prometheus.Desc
	evicted           *prometheus.Desc
	droppedEvents     *prometheus.Desc
	classInstanceCount *prometheus.Desc
	siteAllocCount     *prometheus.Desc
	heapUsed          *prometheus.Desc
	heapCommitted     *prometheus.Desc
	heapMax           *prometheus.Desc
	gcCollections     *prometheus.Desc
	gcPauseTotalMs    *prometheus.Desc
	gcAvgPauseMs      *prometheus.Desc
	leakReports       *prometheus.Desc
	leakCandidates    *prometheus.Desc
}

// New wires an Exporter to a.
func New(a *analyzer.Analyzer) *Exporter {
	ns := "memanalyzer"

	return &Exporter{
		a:   a,
		log: logrus.WithField("component", "metricsexport"),

		trackedCount:       prometheus.NewDesc(ns+"_tracked_objects", "Currently tracked live objects.", nil, nil),
		totalTracked:       prometheus.NewDesc(ns+"_total_tracked", "Cumulative successful track() inserts.", nil, nil),
		totalFreed:         prometheus.NewDesc(ns+"_total_freed", "Cumulative untrack() removals.", nil, nil),
		evicted:            prometheus.NewDesc(ns+"_evicted_entries", "Cumulative cleanup-worker evictions.", nil, nil),
		droppedEvents:      prometheus.NewDesc(ns+"_dropped_events", "Events dropped because the intake ring was full.", nil, nil),
		classInstanceCount: prometheus.NewDesc(ns+"_class_instance_count", "Currently tracked live instance count, by class.", []string{"class"}, nil),
		siteAllocCount:     prometheus.NewDesc(ns+"_site_alloc_count", "Cumulative allocation count, by allocation site.", []string{"site"}, nil),
		heapUsed:           prometheus.NewDesc(ns+"_heap_used_bytes", "Most recently polled heap used bytes.", nil, nil),
		heapCommitted:      prometheus.NewDesc(ns+"_heap_committed_bytes", "Most recently polled heap committed bytes.", nil, nil),
		heapMax:            prometheus.NewDesc(ns+"_heap_max_bytes", "Most recently polled heap max bytes.", nil, nil),
		gcCollections:      prometheus.NewDesc(ns+"_gc_collections_total", "Cumulative GC collection count.", nil, nil),
		gcPauseTotalMs:     prometheus.NewDesc(ns+"_gc_pause_total_ms", "Cumulative GC pause time in milliseconds.", nil, nil),
		gcAvgPauseMs:       prometheus.NewDesc(ns+"_gc_pause_avg_ms", "Average GC pause time in milliseconds.", nil, nil),
		leakReports:        prometheus.NewDesc(ns+"_leak_reports_total", "Non-empty leak reports retained in the detector's report history.", nil, nil),
		leakCandidates:     prometheus.NewDesc(ns+"_leak_candidates_total", "Cumulative leak candidates across all retained reports.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.trackedCount
	ch <- e.totalTracked
	ch <- e.totalFreed
	ch <- e.evicted
	ch <- e.droppedEvents
	ch <- e.classInstanceCount
	ch <- e.siteAllocCount
	ch <- e.heapUsed
	ch <- e.heapCommitted
	ch <- e.heapMax
	ch <- e.gcCollections
	ch <- e.gcPauseTotalMs
	ch <- e.gcAvgPauseMs
	ch <- e.leakReports
	ch <- e.leakCandidates
}

// Collect implements prometheus.Collector, pulling a fresh snapshot of
// analyzer state on every scrape.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	reg := e.a.Registry()

	ch <- prometheus.MustNewConstMetric(e.trackedCount, prometheus.GaugeValue, float64(reg.TrackedCount()))
	ch <- prometheus.MustNewConstMetric(e.totalTracked, prometheus.CounterValue, float64(reg.TotalTracked()))
	ch <- prometheus.MustNewConstMetric(e.totalFreed, prometheus.CounterValue, float64(reg.TotalFreed()))
	ch <- prometheus.MustNewConstMetric(e.evicted, prometheus.CounterValue, float64(reg.Evicted()))
	ch <- prometheus.MustNewConstMetric(e.droppedEvents, prometheus.CounterValue, float64(e.a.DroppedEvents()))

	for class, stats := range reg.GetClassStatistics() {
		ch <- prometheus.MustNewConstMetric(e.classInstanceCount, prometheus.GaugeValue, float64(stats.InstanceCount), class)
	}

	for site, stats := range reg.GetSiteStatistics() {
		ch <- prometheus.MustNewConstMetric(e.siteAllocCount, prometheus.CounterValue, float64(stats.AllocationCount), site)
	}

	heap := e.a.GetHeapMemoryUsage()
	ch <- prometheus.MustNewConstMetric(e.heapUsed, prometheus.GaugeValue, float64(heap.Used))
	ch <- prometheus.MustNewConstMetric(e.heapCommitted, prometheus.GaugeValue, float64(heap.Committed))
	ch <- prometheus.MustNewConstMetric(e.heapMax, prometheus.GaugeValue, float64(heap.Max))

	gc := e.a.GetGCStatistics()
	ch <- prometheus.MustNewConstMetric(e.gcCollections, prometheus.CounterValue, float64(gc.CollectionCount))
	ch <- prometheus.MustNewConstMetric(e.gcPauseTotalMs, prometheus.CounterValue, float64(gc.CollectionTimeMs))
	ch <- prometheus.MustNewConstMetric(e.gcAvgPauseMs, prometheus.GaugeValue, gc.AvgPauseMs())

	reports := e.a.LeakHistory().All()
	ch <- prometheus.MustNewConstMetric(e.leakReports, prometheus.CounterValue, float64(len(reports)))

	var candidateCount int
	for _, r := range reports {
		candidateCount += len(r.Candidates)
	}

	ch <- prometheus.MustNewConstMetric(e.leakCandidates, prometheus.CounterValue, float64(candidateCount))
}

// Server wraps an *http.Server bound to "/metrics" via promhttp, grounded
// on the teacher's own StartMetricsServer/shutdown-func pairing.
type Server struct {
	http *http.Server
	log  *logrus.Entry
}

// NewServer builds (but does not start) a metrics HTTP server on addr,
// registering e with a dedicated, non-default prometheus.Registry so
// scraping this process never picks up the client library's own default
// process/Go-runtime collectors unless the caller opts in.
func NewServer(addr string, e *Exporter) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(e)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &Server{
		http: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 3 * time.Second},
		log:  logrus.WithField("component", "metricsexport"),
	}
}

// Start begins serving in the background. Listener bind errors are
// logged; Start does not block.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithField("err", err).Error("metrics server exited")
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
