// Package record defines the immutable Allocation Record and the
// allocation-site derivation rule used to build one from an ingest event.
package record

import "github.com/zhao666666/java-memory-analyzer/internal/queue"

// Frame is a single stack entry (declaring class, method, file, line).
type Frame = queue.Frame

// MaxFrames mirrors the queue package's cap so callers don't need to
// import queue just for the constant.
const MaxFrames = queue.MaxFrames

// Record is an immutable description of one live (or formerly live)
// allocation. Identity is by ObjectID alone, matching spec.md's data
// model: the registry keys records by ObjectID, so two Records with the
// same ObjectID are the same tracked object.
type Record struct {
	ObjectID       uint64
	ClassName      string
	SizeBytes      uint64
	TimestampMs    int64
	ThreadID       uint64
	ThreadName     string
	Frames         []Frame
	AllocationSite string
}

// SiteDeriver turns a frame list into an allocation site string, skipping
// frames whose declaring class starts with a configured framework prefix.
type SiteDeriver struct {
	frameworkPrefixes []string
}

// NewSiteDeriver builds a deriver that treats any frame whose class begins
// with one of prefixes as framework/analyzer-internal noise to skip over.
func NewSiteDeriver(prefixes []string) *SiteDeriver {
	cp := make([]string, len(prefixes))
	copy(cp, prefixes)

	return &SiteDeriver{frameworkPrefixes: cp}
}

// DefaultFrameworkPrefixes covers the managed runtime's own standard
// library plus this analyzer's own namespace, per spec.md 4.B.
var DefaultFrameworkPrefixes = []string{
	"java.",
	"javax.",
	"jdk.",
	"sun.",
	"com.sun.",
	"kotlin.",
	"scala.",
	"github.com/zhao666666/java-memory-analyzer/",
}

func (d *SiteDeriver) isFramework(class string) bool {
	for _, p := range d.frameworkPrefixes {
		if len(class) >= len(p) && class[:len(p)] == p {
			return true
		}
	}

	return false
}

// Derive returns the serialized allocation site ("class.method(file:line)")
// for frames: the first frame whose class is not framework/analyzer code,
// falling back to the first frame at all, falling back to "unknown" when
// frames is empty.
func (d *SiteDeriver) Derive(frames []Frame) string {
	for _, f := range frames {
		if !d.isFramework(f.Class) {
			return formatSite(f)
		}
	}

	if len(frames) > 0 {
		return formatSite(frames[0])
	}

	return "unknown"
}

func formatSite(f Frame) string {
	if f.Class == "" && f.Method == "" {
		return "unknown"
	}

	return f.Class + "." + f.Method + "(" + f.File + ":" + itoa(f.Line) + ")"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}

	neg := n < 0
	if neg {
		n = -n
	}

	var buf [20]byte

	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}

	if neg {
		i--
		buf[i] = '-'
	}

	return string(buf[i:])
}

// FromEvent builds a Record from an Alloc-kind queue.Event, truncating
// frames to MaxFrames and deriving the allocation site.
func FromEvent(ev *queue.Event, deriver *SiteDeriver) *Record {
	n := ev.FrameCount
	if n > MaxFrames {
		n = MaxFrames
	}

	frames := make([]Frame, n)
	copy(frames, ev.Frames[:n])

	return &Record{
		ObjectID:       ev.Tag,
		ClassName:      ev.ClassName,
		SizeBytes:      ev.Size,
		TimestampMs:    ev.TimestampMs,
		ThreadID:       ev.ThreadID,
		ThreadName:     ev.ThreadName,
		Frames:         frames,
		AllocationSite: deriver.Derive(frames),
	}
}
