package agent

import (
	"runtime"
	"sync/atomic"

	"github.com/zhao666666/java-memory-analyzer/internal/queue"
)

// SyntheticSource is the "no native agent available" alternative adapter:
// it builds Alloc events by walking the caller's own goroutine stack at
// the point RecordAlloc is called, rather than receiving events from
// an embedded native hook. It satisfies the same Source/Sink contract as
// a real agent (spec.md 9).
type SyntheticSource struct {
	sink             Sink
	samplingInterval uint32
	counter          uint64
	dropped          uint64
}

// NewSyntheticSource creates a synthetic adapter pushing into sink with
// the given sampling interval (0 disables sampling).
func NewSyntheticSource(sink Sink, samplingInterval uint32) *SyntheticSource {
	return &SyntheticSource{sink: sink, samplingInterval: samplingInterval}
}

func (s *SyntheticSource) Capabilities() []Capability { return DefaultCapabilities }

func (s *SyntheticSource) SamplingInterval() uint32 { return s.samplingInterval }

func (s *SyntheticSource) Dropped() uint64 { return atomic.LoadUint64(&s.dropped) }

func (s *SyntheticSource) Shutdown() {}

// admit applies the sampling policy: when samplingInterval N > 1, only
// every Nth call is admitted. Sampling is applied before enqueueing, per
// spec.md 4.J.
func (s *SyntheticSource) admit() bool {
	if s.samplingInterval <= 1 {
		return true
	}

	n := atomic.AddUint64(&s.counter, 1)

	return n%uint64(s.samplingInterval) == 0
}

// RecordAlloc walks the caller's stack (skipping `skip` frames, typically
// 1 to skip this function itself) and pushes a synthesized Alloc event.
// Returns false if the event was sampled out or the sink was full. Only
// a full sink counts toward Dropped (the agent contract's backpressure
// semantics); a sampled-out event is not counted.
func (s *SyntheticSource) RecordAlloc(tag uint64, className string, size uint64, timestampMs int64, threadID uint64, threadName string, skip int) bool {
	if !s.admit() {
		return false
	}

	ev := &queue.Event{
		Kind:        queue.KindAlloc,
		Tag:         tag,
		Size:        size,
		TimestampMs: timestampMs,
		ClassName:   className,
		ThreadID:    threadID,
		ThreadName:  threadName,
	}

	ev.FrameCount = captureFrames(ev.Frames[:], skip+1)

	if !s.sink.Push(ev) {
		atomic.AddUint64(&s.dropped, 1)
		return false
	}

	return true
}

// RecordFree pushes a synthesized Free event; sampling does not apply to
// frees (the agent contract only samples allocations).
func (s *SyntheticSource) RecordFree(tag uint64, size uint64, timestampMs int64, threadID uint64) bool {
	ev := &queue.Event{Kind: queue.KindFree, Tag: tag, Size: size, TimestampMs: timestampMs, ThreadID: threadID}

	if !s.sink.Push(ev) {
		atomic.AddUint64(&s.dropped, 1)
		return false
	}

	return true
}

func captureFrames(out []queue.Frame, skip int) int {
	pcs := make([]uintptr, len(out))

	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return 0
	}

	frames := runtime.CallersFrames(pcs[:n])

	count := 0

	for count < len(out) {
		f, more := frames.Next()

		out[count] = queue.Frame{
			Class:  "",
			Method: f.Function,
			File:   f.File,
			Line:   f.Line,
		}
		count++

		if !more {
			break
		}
	}

	return count
}
