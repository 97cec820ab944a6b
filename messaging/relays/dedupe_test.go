package relays

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDedupeDeliversOnce(t *testing.T) {
	cache := NewDedupeCache(100)
	delivered := 0
	for i := 0; i < 10; i++ {
		if cache.MarkSeen("aabbcc") {
			delivered++
		}
	}
	require.Equal(t, 1, delivered)
}

func TestDedupeEvictsOldestFIFO(t *testing.T) {
	const capacity = 50
	const overflow = 7
	cache := NewDedupeCache(capacity)
	for i := 0; i < capacity+overflow; i++ {
		require.True(t, cache.MarkSeen(fmt.Sprintf("id-%04d", i)))
	}
	require.Equal(t, capacity, cache.Len())
	//the oldest entries fell out and count as unseen again
	for i := 0; i < overflow; i++ {
		require.False(t, cache.Seen(fmt.Sprintf("id-%04d", i)))
	}
	for i := overflow; i < capacity+overflow; i++ {
		require.True(t, cache.Seen(fmt.Sprintf("id-%04d", i)))
	}
}

func TestDedupeReset(t *testing.T) {
	cache := NewDedupeCache(10)
	require.True(t, cache.MarkSeen("x"))
	cache.Reset()
	require.Equal(t, 0, cache.Len())
	require.True(t, cache.MarkSeen("x"))
}

func TestDedupeConcurrentMarkSeen(t *testing.T) {
	cache := NewDedupeCache(1000)
	results := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		go func() {
			results <- cache.MarkSeen("contested")
		}()
	}
	firsts := 0
	for i := 0; i < 100; i++ {
		if <-results {
			firsts++
		}
	}
	require.Equal(t, 1, firsts, "check-and-insert must be atomic")
}
