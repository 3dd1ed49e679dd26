package record

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhao666666/java-memory-analyzer/internal/queue"
)

func TestSiteDeriver_SkipsFrameworkFrames(t *testing.T) {
	d := NewSiteDeriver(DefaultFrameworkPrefixes)

	site := d.Derive([]Frame{
		{Class: "java.util.ArrayList", Method: "add", File: "ArrayList.java", Line: 100},
		{Class: "com.acme.Leaky", Method: "f", File: "Leaky.java", Line: 10},
	})

	require.Equal(t, "com.acme.Leaky.f(Leaky.java:10)", site)
}

func TestSiteDeriver_FallsBackToFirstFrame(t *testing.T) {
	d := NewSiteDeriver(DefaultFrameworkPrefixes)

	site := d.Derive([]Frame{
		{Class: "java.util.ArrayList", Method: "add", File: "ArrayList.java", Line: 100},
	})

	require.Equal(t, "java.util.ArrayList.add(ArrayList.java:100)", site)
}

func TestSiteDeriver_EmptyFramesIsUnknown(t *testing.T) {
	d := NewSiteDeriver(DefaultFrameworkPrefixes)
	require.Equal(t, "unknown", d.Derive(nil))
}

func TestFromEvent_TruncatesFrames(t *testing.T) {
	ev := &queue.Event{
		Kind:        queue.KindAlloc,
		Tag:         1,
		Size:        100,
		TimestampMs: 1000,
		ClassName:   "C",
		FrameCount:  MaxFrames + 5,
	}
	for i := range ev.Frames {
		ev.Frames[i] = Frame{Class: "com.acme.C", Method: "f", File: "C.java", Line: i}
	}

	d := NewSiteDeriver(DefaultFrameworkPrefixes)
	rec := FromEvent(ev, d)

	require.Len(t, rec.Frames, MaxFrames)
	require.Equal(t, uint64(1), rec.ObjectID)
	require.Equal(t, "com.acme.C.f(C.java:0)", rec.AllocationSite)
}
