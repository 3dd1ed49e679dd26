// Package queue implements the intake path between the native profiling
// agent and the heap analyzer: the event schema and the lock-free
// single-producer/single-consumer ring that carries it.
package queue

// Kind distinguishes the four event variants the native agent contract
// (see internal/agent) emits.
type Kind uint8

const (
	KindAlloc Kind = iota
	KindFree
	KindGCStart
	KindGCFinish
)

// Frame is one stack entry as the agent reports it: class.method(file:line).
type Frame struct {
	Class  string
	Method string
	File   string
	Line   int
}

// MaxFrames is the hard cap on captured stack depth (spec: length <= 20).
const MaxFrames = 20

// Event is the value copied by value into ring slots. It must stay free of
// pointers into agent-owned memory; all fields are value types or owned
// copies so a slot can be overwritten without racing a reader.
type Event struct {
	Kind        Kind
	Tag         uint64
	Size        uint64
	TimestampMs int64
	ClassName   string
	ThreadID    uint64
	ThreadName  string
	Frames      [MaxFrames]Frame
	FrameCount  int
}
