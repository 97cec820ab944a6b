package pow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
	"meshnostr/protocol/identity"
)

func TestCountLeadingZeroBits(t *testing.T) {
	cases := map[string]int{
		strings.Repeat("0", 64):       256,
		"8" + strings.Repeat("0", 63): 0,
		"4" + strings.Repeat("0", 63): 1,
		"2" + strings.Repeat("0", 63): 2,
		"1" + strings.Repeat("0", 63): 3,
		"08" + strings.Repeat("0", 62): 4,
		"002f" + strings.Repeat("0", 60): 10,
		"not hex": 0,
	}
	for id, want := range cases {
		require.Equal(t, want, CountLeadingZeroBits(id), "id %s", id)
	}
}

func unminedEvent() nostr.Event {
	id := identity.Generate()
	return nostr.Event{
		PubKey:    id.Account,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      1,
		Tags:      nostr.Tags{},
		Content:   "spam costs work",
	}
}

func TestMineReachesTarget(t *testing.T) {
	const target = 10
	mined := Mine(context.Background(), unminedEvent(), target)
	require.NotNil(t, mined)
	require.GreaterOrEqual(t, CountLeadingZeroBits(mined.ID), target)
	require.True(t, ValidateDifficulty(mined, target))

	nonceTag := mined.Tags.GetFirst([]string{"nonce"})
	require.NotNil(t, nonceTag)
}

func TestMineReturnsNilOnExhaustedBudget(t *testing.T) {
	mined := MineWithBudget(context.Background(), unminedEvent(), 64, 16)
	require.Nil(t, mined)
}

func TestMineIsCancellable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	//an impossible target with a cancelled context must come back fast
	done := make(chan *nostr.Event, 1)
	go func() {
		done <- Mine(ctx, unminedEvent(), 255)
	}()
	select {
	case mined := <-done:
		require.Nil(t, mined)
	case <-time.After(5 * time.Second):
		t.Fatal("mining did not observe cancellation")
	}
}

func TestValidateDifficultyRejectsWeakEvents(t *testing.T) {
	ev := unminedEvent()
	mined := Mine(context.Background(), ev, 4)
	require.NotNil(t, mined)
	require.False(t, ValidateDifficulty(mined, 200))
	require.False(t, ValidateDifficulty(nil, 0))
}

func TestMiningIsMonotonic(t *testing.T) {
	mined := Mine(context.Background(), unminedEvent(), 12)
	require.NotNil(t, mined)
	for d := 0; d <= 12; d++ {
		require.True(t, ValidateDifficulty(mined, d))
	}
}
