package eventcodec

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/nbd-wtf/go-nostr"
	"meshnostr/engine/library"
	"meshnostr/protocol/identity"
)

// Event kinds this engine produces and consumes.
const (
	KindRumorChat = 14
	KindRumorFile = 15
	KindSeal      = 13
	KindGiftWrap  = 1059
)

// InvalidEventShapeError reports a structurally malformed event from a relay
// or the mesh. The offending event is dropped, the stream continues.
type InvalidEventShapeError struct {
	Reason string
}

func (e *InvalidEventShapeError) Error() string {
	return "invalid event shape: " + e.Reason
}

// ComputeID returns the sha256 of the canonical serialization
// [0, pubkey, created_at, kind, tags, content].
func ComputeID(ev *nostr.Event) library.Sha256 {
	return library.Sha256Sum(ev.Serialize())
}

// Sign computes the event ID if absent and signs with the given identity.
func Sign(ev *nostr.Event, id identity.Identity) error {
	if ev.PubKey == "" {
		ev.PubKey = id.Account
	}
	if ev.PubKey != id.Account {
		return &identity.CryptoError{Reason: "event pubkey does not match the signing identity"}
	}
	if ev.ID == "" {
		ev.ID = ComputeID(ev)
	}
	if err := ev.Sign(id.PrivateKey); err != nil {
		return &identity.CryptoError{Reason: fmt.Sprintf("signing failed: %s", err)}
	}
	return nil
}

// Verify recomputes the event ID from its fields, rejects the event if it
// differs from the stored ID, then checks the BIP-340 signature against the
// author's x-only pubkey. Any mutation of a signed field fails both gates.
func Verify(ev *nostr.Event) (bool, error) {
	if ev == nil {
		return false, &InvalidEventShapeError{Reason: "nil event"}
	}
	if ComputeID(ev) != ev.ID {
		return false, nil
	}
	pubBytes, err := hex.DecodeString(ev.PubKey)
	if err != nil || len(pubBytes) != 32 {
		return false, &identity.CryptoError{Reason: "event pubkey is not a 32 byte hex string"}
	}
	pub, err := schnorr.ParsePubKey(pubBytes)
	if err != nil {
		return false, &identity.CryptoError{Reason: fmt.Sprintf("event pubkey is not on the curve: %s", err)}
	}
	sigBytes, err := hex.DecodeString(ev.Sig)
	if err != nil || len(sigBytes) != 64 {
		return false, &identity.CryptoError{Reason: "event signature is not a 64 byte hex string"}
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false, &identity.CryptoError{Reason: fmt.Sprintf("malformed signature: %s", err)}
	}
	idBytes, err := hex.DecodeString(ev.ID)
	if err != nil || len(idBytes) != 32 {
		return false, &InvalidEventShapeError{Reason: "event id is not a 32 byte hex string"}
	}
	return sig.Verify(idBytes, pub), nil
}

// Marshal renders the event as wire JSON.
func Marshal(ev *nostr.Event) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, &InvalidEventShapeError{Reason: err.Error()}
	}
	return b, nil
}

// Unmarshal parses wire JSON into an event, surfacing shape problems rather
// than partially populated events.
func Unmarshal(data []byte) (*nostr.Event, error) {
	var ev nostr.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, &InvalidEventShapeError{Reason: err.Error()}
	}
	if len(ev.ID) != 64 || len(ev.PubKey) != 64 {
		return nil, &InvalidEventShapeError{Reason: "id and pubkey must be 32 byte hex strings"}
	}
	return &ev, nil
}
