package actors

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentityBridgePersistsSeedAcrossRestarts(t *testing.T) {
	store := NewMemoryKeyValueStore()
	first := NewIdentityBridge(store).MyIdentity()
	//a second bridge over the same store is "the app restarting"
	second := NewIdentityBridge(store).MyIdentity()
	require.Equal(t, first.Account, second.Account)
	require.Equal(t, first.PrivateKey, second.PrivateKey)
}

func TestIdentityBridgeDerivesDeterministically(t *testing.T) {
	store := NewMemoryKeyValueStore()
	bridge := NewIdentityBridge(store)
	a, err := bridge.DeriveIdentity("u4pruyd")
	require.NoError(t, err)
	b, err := bridge.DeriveIdentity("u4pruyd")
	require.NoError(t, err)
	require.Equal(t, a.Account, b.Account)

	other, err := bridge.DeriveIdentity("gbsuv7z")
	require.NoError(t, err)
	require.NotEqual(t, a.Account, other.Account)
	//derived identities differ from the root
	require.NotEqual(t, bridge.MyIdentity().Account, a.Account)
}

func TestFreshStoresYieldDifferentIdentities(t *testing.T) {
	first := NewIdentityBridge(NewMemoryKeyValueStore()).MyIdentity()
	second := NewIdentityBridge(NewMemoryKeyValueStore()).MyIdentity()
	require.NotEqual(t, first.Account, second.Account)
}

func TestMemoryKeyValueStore(t *testing.T) {
	store := NewMemoryKeyValueStore()
	_, ok := store.GetString("missing")
	require.False(t, ok)
	require.NoError(t, store.PutString("k", "v"))
	v, ok := store.GetString("k")
	require.True(t, ok)
	require.Equal(t, "v", v)
}
