// Package agent defines the contract the core requires from a
// process-embedded native profiling agent (spec.md 4.J), plus an
// alternative synthetic adapter that satisfies the same ingest contract
// without a live agent attached (spec.md 9's bytecode-instrumentation
// redesign note).
package agent

import "github.com/zhao666666/java-memory-analyzer/internal/queue"

// Capability names the instrumentation hooks the core requests on agent
// load.
type Capability string

const (
	CapabilityTagObjects       Capability = "tag_objects"
	CapabilityAllocSamples     Capability = "alloc_samples"
	CapabilityFreeEvents       Capability = "free_events"
	CapabilityGCEvents         Capability = "gc_events"
	CapabilityMethodNames      Capability = "method_names"
	CapabilitySourceLocations  Capability = "source_locations"
)

// DefaultCapabilities is the full capability set spec.md 4.J requires.
var DefaultCapabilities = []Capability{
	CapabilityTagObjects,
	CapabilityAllocSamples,
	CapabilityFreeEvents,
	CapabilityGCEvents,
	CapabilityMethodNames,
	CapabilitySourceLocations,
}

// Source is the contract a native agent (or an alternative adapter) must
// satisfy: emit events into a Sink, apply its own sampling policy, and
// signal end-of-stream on shutdown.
type Source interface {
	// Capabilities reports which of DefaultCapabilities this source
	// actually negotiated with the target runtime.
	Capabilities() []Capability

	// SamplingInterval returns N: only every Nth allocation is admitted
	// (0 disables sampling — every allocation is recorded).
	SamplingInterval() uint32

	// Dropped returns the cumulative count of events the source itself
	// dropped under backpressure, before they ever reached the queue.
	Dropped() uint64

	// Shutdown signals end-of-stream; the analyzer drains remaining
	// queued events and marks the stream terminated.
	Shutdown()
}

// Sink is what a Source pushes events into — satisfied by *queue.Ring.
type Sink interface {
	Push(ev *queue.Event) bool
}
