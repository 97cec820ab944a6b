package main

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"meshnostr/messaging/gateway"
	"meshnostr/messaging/relays"
	"meshnostr/protocol/eventcodec"
	"meshnostr/protocol/giftwrap"
	"meshnostr/protocol/identity"
	"meshnostr/protocol/pow"
)

type captureMesh struct {
	mu     sync.Mutex
	frames [][]byte
}

func (m *captureMesh) Send(frame []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, frame)
}

func (m *captureMesh) sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.frames))
	copy(out, m.frames)
	return out
}

type offlineProbe struct{}

func (offlineProbe) HasInternet() bool { return false }

// The mining worker produces a wrap that meets the floor and reaches the
// gateway fully signed, with nothing waiting on the keyboard goroutine.
func TestMineAndDeliverProducesAValidWrap(t *testing.T) {
	mesh := &captureMesh{}
	pool := relays.NewPool(relays.DefaultConfig())
	gw := gateway.NewGateway(pool, mesh, offlineProbe{}, nil, gateway.NewRelaySelector(nil, nil, 3), 8)
	sender := identity.Generate()
	recipient := identity.Generate()

	mineAndDeliver(sender, recipient.Account, "worker mined", 8, gw)

	frames := mesh.sent()
	require.Len(t, frames, 1)
	body, err := gateway.DecodeMeshFrame(frames[0], nil)
	require.NoError(t, err)
	ev, err := eventcodec.Unmarshal(body)
	require.NoError(t, err)
	require.True(t, pow.ValidateDifficulty(ev, 8))
	ok, err := eventcodec.Verify(ev)
	require.NoError(t, err)
	require.True(t, ok)

	rumor, err := giftwrap.Unwrap(ev, recipient)
	require.NoError(t, err)
	require.Equal(t, "worker mined", rumor.Content)
}
