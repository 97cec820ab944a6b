package pow

import (
	"context"
	"encoding/hex"
	"errors"
	"math/bits"
	"strconv"

	"github.com/nbd-wtf/go-nostr"
	"meshnostr/engine/library"
	"meshnostr/protocol/eventcodec"
)

// DefaultIterationBudget bounds a single Mine call. Mining is brute force
// over the nonce tag and must terminate; callers retry or lower the target.
const DefaultIterationBudget = 1 << 22

const cancelCheckInterval = 4096

// ErrMiningExhausted signals that the nonce search ran out of budget or was
// cancelled. The caller decides between retrying with a lower target and
// giving up.
var ErrMiningExhausted = errors.New("mining budget exhausted")

// CountLeadingZeroBits counts zero bits in the event ID from the most
// significant bit. Returns 0 for malformed hex.
func CountLeadingZeroBits(id library.Sha256) int {
	idBytes, err := hex.DecodeString(id)
	if err != nil {
		return 0
	}
	count := 0
	for _, b := range idBytes {
		if b == 0 {
			count += 8
			continue
		}
		count += bits.LeadingZeros8(b)
		break
	}
	return count
}

// Mine searches for a nonce that gives the event at least targetDifficulty
// leading zero bits. The event must not yet be signed; the nonce tag is
// rewritten in place and the ID recomputed each attempt. Returns nil when
// the iteration budget runs out or ctx is cancelled.
func Mine(ctx context.Context, ev nostr.Event, targetDifficulty int) *nostr.Event {
	return MineWithBudget(ctx, ev, targetDifficulty, DefaultIterationBudget)
}

func MineWithBudget(ctx context.Context, ev nostr.Event, targetDifficulty int, budget int) *nostr.Event {
	difficultyStr := strconv.Itoa(targetDifficulty)
	nonceIndex := -1
	for i, tag := range ev.Tags {
		if tag.StartsWith([]string{"nonce"}) {
			nonceIndex = i
			break
		}
	}
	if nonceIndex < 0 {
		ev.Tags = append(ev.Tags, nostr.Tag{"nonce", "0", difficultyStr})
		nonceIndex = len(ev.Tags) - 1
	}
	for nonce := 0; nonce < budget; nonce++ {
		if nonce%cancelCheckInterval == 0 {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
		}
		ev.Tags[nonceIndex] = nostr.Tag{"nonce", strconv.Itoa(nonce), difficultyStr}
		ev.ID = eventcodec.ComputeID(&ev)
		if CountLeadingZeroBits(ev.ID) >= targetDifficulty {
			mined := ev
			return &mined
		}
	}
	return nil
}

// ValidateDifficulty recomputes the leading zero bits of the event ID and
// checks them against minDifficulty. The ID itself is trusted to match the
// event here; run eventcodec.Verify separately.
func ValidateDifficulty(ev *nostr.Event, minDifficulty int) bool {
	if ev == nil {
		return false
	}
	return CountLeadingZeroBits(ev.ID) >= minDifficulty
}
