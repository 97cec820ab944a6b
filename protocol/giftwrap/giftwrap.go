package giftwrap

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"meshnostr/engine/library"
	"meshnostr/protocol/eventcodec"
	"meshnostr/protocol/identity"
	"meshnostr/protocol/pow"
)

// ErrExpired marks a gift wrap whose rumor is older than the replay horizon.
// Callers drop these silently; the content was valid but is too old to act on.
var ErrExpired = errors.New("gift wrap expired")

// Replay horizon: wraps are backdated up to two days on the wire, plus a
// grace period for clock skew.
const maxMessageAge = 48*time.Hour + 15*time.Minute

const maxBackdate = 48 * time.Hour

// BuildRumor constructs the unsigned inner event of a private message. The
// ID is computed so the recipient can reference it, the signature stays empty.
func BuildRumor(kind int, content string, sender identity.Identity, recipient library.Account, extraTags nostr.Tags) nostr.Event {
	tags := nostr.Tags{nostr.Tag{"p", recipient}}
	tags = append(tags, extraTags...)
	rumor := nostr.Event{
		PubKey:    sender.Account,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	rumor.ID = eventcodec.ComputeID(&rumor)
	return rumor
}

// Wrap runs the full rumor -> seal -> gift wrap chain. The seal is signed by
// the real sender, the wrap by a single-use ephemeral identity that is
// discarded on return, so relays only ever see the ephemeral key.
func Wrap(rumor nostr.Event, sender identity.Identity, recipient library.Account) (*nostr.Event, error) {
	wrap, ephemeral, err := buildWrap(rumor, sender, recipient)
	if err != nil {
		return nil, err
	}
	if err := eventcodec.Sign(wrap, ephemeral); err != nil {
		return nil, err
	}
	return wrap, nil
}

// WrapWithPoW is Wrap with the nonce search folded in before the ephemeral
// signature, since mining afterwards would change the ID out from under the
// signature. Returns pow.ErrMiningExhausted when the budget runs out.
func WrapWithPoW(ctx context.Context, rumor nostr.Event, sender identity.Identity, recipient library.Account, targetDifficulty int) (*nostr.Event, error) {
	wrap, ephemeral, err := buildWrap(rumor, sender, recipient)
	if err != nil {
		return nil, err
	}
	mined := pow.Mine(ctx, *wrap, targetDifficulty)
	if mined == nil {
		return nil, pow.ErrMiningExhausted
	}
	if err := eventcodec.Sign(mined, ephemeral); err != nil {
		return nil, err
	}
	return mined, nil
}

func buildWrap(rumor nostr.Event, sender identity.Identity, recipient library.Account) (*nostr.Event, identity.Identity, error) {
	rumorJSON, err := json.Marshal(rumor)
	if err != nil {
		return nil, identity.Identity{}, &identity.CryptoError{Reason: "rumor does not serialize: " + err.Error()}
	}
	sealKey, err := ConversationKey(sender, recipient)
	if err != nil {
		return nil, identity.Identity{}, err
	}
	sealContent, err := Encrypt(rumorJSON, sealKey)
	if err != nil {
		return nil, identity.Identity{}, err
	}
	seal := nostr.Event{
		PubKey:    sender.Account,
		CreatedAt: backdatedNow(),
		Kind:      eventcodec.KindSeal,
		Tags:      nostr.Tags{},
		Content:   sealContent,
	}
	if err := eventcodec.Sign(&seal, sender); err != nil {
		return nil, identity.Identity{}, err
	}

	ephemeral := identity.Generate()
	sealJSON, err := json.Marshal(seal)
	if err != nil {
		return nil, identity.Identity{}, &identity.CryptoError{Reason: "seal does not serialize: " + err.Error()}
	}
	wrapKey, err := ConversationKey(ephemeral, recipient)
	if err != nil {
		return nil, identity.Identity{}, err
	}
	wrapContent, err := Encrypt(sealJSON, wrapKey)
	if err != nil {
		return nil, identity.Identity{}, err
	}
	wrap := nostr.Event{
		PubKey:    ephemeral.Account,
		CreatedAt: backdatedNow(),
		Kind:      eventcodec.KindGiftWrap,
		Tags:      nostr.Tags{nostr.Tag{"p", recipient}},
		Content:   wrapContent,
	}
	return &wrap, ephemeral, nil
}

// Unwrap inverts Wrap: verify the wrap signature, peel the wrap, verify the
// seal signature, peel the seal, and return the rumor. Every failure along
// the way collapses to ErrDecryptionFailed so an attacker learns nothing
// about which layer rejected.
func Unwrap(wrap *nostr.Event, recipient identity.Identity) (*nostr.Event, error) {
	if wrap == nil || wrap.Kind != eventcodec.KindGiftWrap {
		return nil, ErrDecryptionFailed
	}
	if ok, _ := eventcodec.Verify(wrap); !ok {
		return nil, ErrDecryptionFailed
	}
	wrapKey, err := ConversationKey(recipient, wrap.PubKey)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	sealJSON, err := Decrypt(wrap.Content, wrapKey)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	var seal nostr.Event
	if err := json.Unmarshal(sealJSON, &seal); err != nil {
		return nil, ErrDecryptionFailed
	}
	if seal.Kind != eventcodec.KindSeal {
		return nil, ErrDecryptionFailed
	}
	if ok, _ := eventcodec.Verify(&seal); !ok {
		return nil, ErrDecryptionFailed
	}
	sealKey, err := ConversationKey(recipient, seal.PubKey)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	rumorJSON, err := Decrypt(seal.Content, sealKey)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	var rumor nostr.Event
	if err := json.Unmarshal(rumorJSON, &rumor); err != nil {
		return nil, ErrDecryptionFailed
	}
	//the rumor author must be the seal signer, otherwise the seal layer
	//could relay someone else's rumor
	if rumor.PubKey != seal.PubKey {
		return nil, ErrDecryptionFailed
	}
	if time.Since(time.Unix(int64(rumor.CreatedAt), 0)) > maxMessageAge {
		return nil, ErrExpired
	}
	return &rumor, nil
}

func backdatedNow() nostr.Timestamp {
	offset := time.Duration(rand.Int63n(int64(maxBackdate)))
	return nostr.Timestamp(time.Now().Add(-offset).Unix())
}
