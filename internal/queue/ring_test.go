package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRing_FIFO(t *testing.T) {
	r := NewRing(8)

	for i := 0; i < 5; i++ {
		ok := r.Push(&Event{Kind: KindAlloc, Tag: uint64(i)})
		require.True(t, ok)
	}

	for i := 0; i < 5; i++ {
		var ev Event
		ok := r.Pop(&ev)
		require.True(t, ok)
		require.Equal(t, uint64(i), ev.Tag)
	}

	var ev Event
	require.False(t, r.Pop(&ev))
}

func TestRing_DropsNewestWhenFull(t *testing.T) {
	r := NewRing(4) // rounds to 4

	for i := 0; i < 4; i++ {
		require.True(t, r.Push(&Event{Tag: uint64(i)}))
	}

	require.False(t, r.Push(&Event{Tag: 999}))
	require.Equal(t, uint64(1), r.Dropped())

	var ev Event
	require.True(t, r.Pop(&ev))
	require.Equal(t, uint64(0), ev.Tag)
}

func TestRing_ConcurrentSPSC(t *testing.T) {
	r := NewRing(1024)
	const n = 200000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()

		for i := 0; i < n; i++ {
			ev := Event{Tag: uint64(i)}
			for !r.Push(&ev) {
			}
		}
	}()

	received := make([]uint64, 0, n)

	go func() {
		defer wg.Done()

		var ev Event
		for len(received) < n {
			if r.Pop(&ev) {
				received = append(received, ev.Tag)
			}
		}
	}()

	wg.Wait()
	require.Len(t, received, n)

	for i, tag := range received {
		require.Equal(t, uint64(i), tag)
	}
}
