package queue

import "sync/atomic"

// Ring is a bounded single-producer/single-consumer lock-free ring buffer.
// It is the event-intake structure described in spec.md 4.A: exactly one
// producer thread (the agent, or the instrumentation path calling
// RecordAllocation) and exactly one consumer thread (the analyzer's
// event-processor goroutine) may call Push and Pop respectively.
//
// The design is a Lamport ring rather than the CAS-based Vyukov MPMC
// pattern: with a single writer and single reader there is never a race to
// resolve, so the hot path is a plain atomic load/store, not a
// compare-and-swap loop. Capacity is rounded up to a power of two so index
// wrapping is a bitmask instead of a modulo.
type Ring struct {
	_pad0 [64]byte
	head  uint64 // next slot the consumer will read; advanced only by the consumer
	_pad1 [64]byte
	tail  uint64 // next slot the producer will write; advanced only by the producer
	_pad2 [64]byte
	mask  uint64
	slots []slot

	dropped uint64 // producer-side: events dropped because the ring was full
}

type slot struct {
	ready uint32 // 1 once Event is published and safe to read
	_pad  [60]byte
	ev    Event
}

// DefaultCapacity matches spec.md 6's default of 65,536 slots.
const DefaultCapacity = 65536

// NewRing creates a ring with the given capacity, rounded up to the next
// power of two (minimum 2).
func NewRing(capacity int) *Ring {
	if capacity < 2 {
		capacity = 2
	}

	n := uint64(1)
	for n < uint64(capacity) {
		n <<= 1
	}

	return &Ring{
		mask:  n - 1,
		slots: make([]slot, n),
	}
}

// Push attempts to enqueue ev. It never blocks and never allocates. On a
// full ring it drops the event, increments the dropped counter, and
// returns false — the producer-on-full policy spec.md 4.A requires.
func (r *Ring) Push(ev *Event) bool {
	tail := r.tail
	head := atomic.LoadUint64(&r.head)

	if tail-head >= uint64(len(r.slots)) {
		atomic.AddUint64(&r.dropped, 1)
		return false
	}

	s := &r.slots[tail&r.mask]
	s.ev = *ev
	atomic.StoreUint32(&s.ready, 1) // release: publish the slot contents
	atomic.StoreUint64(&r.tail, tail+1)

	return true
}

// Pop attempts to dequeue the oldest event into out. Returns false if the
// ring is currently empty; the caller (the event-processor loop) is
// responsible for the "sleep ~100us and retry" backoff spec.md 4.A
// describes — Pop itself never sleeps.
func (r *Ring) Pop(out *Event) bool {
	head := r.head
	s := &r.slots[head&r.mask]

	if atomic.LoadUint32(&s.ready) == 0 { // acquire: wait for publish
		return false
	}

	*out = s.ev
	atomic.StoreUint32(&s.ready, 0)
	atomic.StoreUint64(&r.head, head+1)

	return true
}

// Len returns an approximate count of queued-but-unconsumed events. It is
// read by both sides without synchronization beyond the atomic loads and
// is therefore a snapshot, not an exact value.
func (r *Ring) Len() int {
	tail := atomic.LoadUint64(&r.tail)
	head := atomic.LoadUint64(&r.head)

	if tail < head {
		return 0
	}

	return int(tail - head)
}

// Dropped returns the cumulative count of events dropped because the ring
// was full at Push time.
func (r *Ring) Dropped() uint64 {
	return atomic.LoadUint64(&r.dropped)
}
