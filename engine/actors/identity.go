package actors

import (
	"fmt"

	"github.com/nbd-wtf/go-nostr/nip06"
	"github.com/sasha-s/go-deadlock"
	"meshnostr/engine/library"
	"meshnostr/protocol/identity"
)

const seedWordsKey = "deviceSeedWords"

// IdentityBridge owns the one persisted device seed and hands out the root
// identity plus deterministic per-context identities derived from it.
// Derived identities are recomputed on demand, never stored.
type IdentityBridge struct {
	store SecureKeyValueStore

	mu   deadlock.Mutex
	root identity.Identity
	seed []byte
}

func NewIdentityBridge(store SecureKeyValueStore) *IdentityBridge {
	return &IdentityBridge{store: store}
}

// MyIdentity returns the root identity, restoring it from the secure store
// or generating and persisting a fresh seed on first run.
func (b *IdentityBridge) MyIdentity() identity.Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.root.PrivateKey) != 0 {
		return b.root
	}
	words, ok := b.store.GetString(seedWordsKey)
	if !ok {
		library.LogCLI("Generating a new device seed, write down the seed words if you want to keep it", 4)
		var err error
		words, err = nip06.GenerateSeedWords()
		if err != nil {
			library.LogCLI(err.Error(), 0)
		}
		if err := b.store.PutString(seedWordsKey, words); err != nil {
			library.LogCLI(err.Error(), 0)
		}
		fmt.Printf("\n\n~NEW IDENTITY~\nSeed Words: %s\n\n", words)
	}
	b.seed = nip06.SeedFromWords(words)
	sk, err := nip06.PrivateKeyFromSeed(b.seed)
	if err != nil {
		library.LogCLI(err.Error(), 0)
	}
	root, err := identity.FromPrivateKey(sk)
	if err != nil {
		library.LogCLI(err.Error(), 0)
	}
	b.root = root
	return b.root
}

// DeriveIdentity returns the deterministic identity for a context string,
// e.g. a geohash channel. Same context, same identity, for the life of the
// device seed.
func (b *IdentityBridge) DeriveIdentity(context string) (identity.Identity, error) {
	b.MyIdentity() //ensure the seed is loaded
	b.mu.Lock()
	defer b.mu.Unlock()
	return identity.Derive(b.seed, context)
}
