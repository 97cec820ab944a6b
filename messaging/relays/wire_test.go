package relays

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
	"meshnostr/protocol/eventcodec"
	"meshnostr/protocol/identity"
)

func signedTestEvent(t *testing.T) *nostr.Event {
	t.Helper()
	id := identity.Generate()
	ev := nostr.Event{
		PubKey:    id.Account,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      1,
		Tags:      nostr.Tags{},
		Content:   "over the wire",
	}
	require.NoError(t, eventcodec.Sign(&ev, id))
	return &ev
}

func TestEventMessageRoundTrip(t *testing.T) {
	ev := signedTestEvent(t)
	msg, err := encodeEventMessage(ev)
	require.NoError(t, err)

	var parts []json.RawMessage
	require.NoError(t, json.Unmarshal(msg, &parts))
	require.Len(t, parts, 2)
	var label string
	require.NoError(t, json.Unmarshal(parts[0], &label))
	require.Equal(t, "EVENT", label)
}

func TestReqMessageShape(t *testing.T) {
	msg, err := encodeReqMessage("sub-1", []nostr.Filter{{Kinds: []int{1059}}})
	require.NoError(t, err)
	var parts []json.RawMessage
	require.NoError(t, json.Unmarshal(msg, &parts))
	require.Len(t, parts, 3)
	var filter nostr.Filter
	require.NoError(t, json.Unmarshal(parts[2], &filter))
	require.Equal(t, []int{1059}, filter.Kinds)
}

func TestDecodeInboundEvent(t *testing.T) {
	ev := signedTestEvent(t)
	evJSON, err := json.Marshal(ev)
	require.NoError(t, err)
	frame := []byte(`["EVENT","sub-1",` + string(evJSON) + `]`)
	env, err := decodeRelayMessage(frame)
	require.NoError(t, err)
	eventEnv, ok := env.(EventEnvelope)
	require.True(t, ok)
	require.Equal(t, "sub-1", eventEnv.SubscriptionID)
	require.Equal(t, ev.ID, eventEnv.Event.ID)
}

func TestDecodeEOSEAndOKAndNotice(t *testing.T) {
	env, err := decodeRelayMessage([]byte(`["EOSE","sub-1"]`))
	require.NoError(t, err)
	require.Equal(t, EOSEEnvelope{SubscriptionID: "sub-1"}, env)

	env, err = decodeRelayMessage([]byte(`["OK","abc123",true,"stored"]`))
	require.NoError(t, err)
	require.Equal(t, OKEnvelope{EventID: "abc123", Accepted: true, Message: "stored"}, env)

	env, err = decodeRelayMessage([]byte(`["NOTICE","slow down"]`))
	require.NoError(t, err)
	require.Equal(t, NoticeEnvelope{Message: "slow down"}, env)
}

func TestDecodeUnknownLabelIsIgnoredNotFatal(t *testing.T) {
	env, err := decodeRelayMessage([]byte(`["AUTH","challenge"]`))
	require.NoError(t, err)
	require.Equal(t, UnknownEnvelope{Label: "AUTH"}, env)
}

func TestDecodeMalformedFrames(t *testing.T) {
	_, err := decodeRelayMessage([]byte(`{"not":"an array"}`))
	require.Error(t, err)
	_, err = decodeRelayMessage([]byte(`[]`))
	require.Error(t, err)
	_, err = decodeRelayMessage([]byte(`[42]`))
	require.Error(t, err)
}

func TestDecodeTruncatedEnvelopesAreUnknown(t *testing.T) {
	env, err := decodeRelayMessage([]byte(`["EVENT"]`))
	require.NoError(t, err)
	require.IsType(t, UnknownEnvelope{}, env)
	env, err = decodeRelayMessage([]byte(`["OK","abc123"]`))
	require.NoError(t, err)
	require.IsType(t, UnknownEnvelope{}, env)
}
