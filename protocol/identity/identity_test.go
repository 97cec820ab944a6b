package identity

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateProducesValidIdentity(t *testing.T) {
	id := Generate()
	require.Len(t, id.PrivateKey, 64)
	require.Len(t, id.Account, 64)
	roundTripped, err := FromPrivateKey(id.PrivateKey)
	require.NoError(t, err)
	require.Equal(t, id.Account, roundTripped.Account)
}

func TestFromPrivateKeyRejectsBadScalars(t *testing.T) {
	var cryptoErr *CryptoError
	_, err := FromPrivateKey(strings.Repeat("00", 32))
	require.ErrorAs(t, err, &cryptoErr)

	//the curve order itself is out of range
	_, err = FromPrivateKey("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141")
	require.ErrorAs(t, err, &cryptoErr)

	_, err = FromPrivateKey("not hex at all")
	require.ErrorAs(t, err, &cryptoErr)

	_, err = FromPrivateKey("abcd")
	require.ErrorAs(t, err, &cryptoErr)
}

func TestFromPrivateKeyAcceptsMaxValidScalar(t *testing.T) {
	//one below the curve order
	_, err := FromPrivateKey("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364140")
	require.NoError(t, err)
}

func TestDeriveIsDeterministic(t *testing.T) {
	seed := []byte("a device seed that never changes")
	first, err := Derive(seed, "u4pruyd")
	require.NoError(t, err)
	second, err := Derive(seed, "u4pruyd")
	require.NoError(t, err)
	require.Equal(t, first.PrivateKey, second.PrivateKey)
	require.Equal(t, first.Account, second.Account)
}

func TestDeriveDifferentContextsDiffer(t *testing.T) {
	seed := []byte("a device seed that never changes")
	a, err := Derive(seed, "u4pruyd")
	require.NoError(t, err)
	b, err := Derive(seed, "gbsuv7z")
	require.NoError(t, err)
	require.NotEqual(t, a.PrivateKey, b.PrivateKey)
}

func TestDeriveDifferentSeedsDiffer(t *testing.T) {
	a, err := Derive([]byte("seed one"), "u4pruyd")
	require.NoError(t, err)
	b, err := Derive([]byte("seed two"), "u4pruyd")
	require.NoError(t, err)
	require.NotEqual(t, a.Account, b.Account)
}

func TestPublicPointRecoversGeneratedKeys(t *testing.T) {
	for i := 0; i < 16; i++ {
		id := Generate()
		point, err := PublicPoint(id.Account)
		require.NoError(t, err)
		x := point.X().Bytes()
		padded := make([]byte, 32)
		copy(padded[32-len(x):], x)
		require.Equal(t, id.Account, hex.EncodeToString(padded))
	}
}

func TestPublicPointRejectsGarbage(t *testing.T) {
	var cryptoErr *CryptoError
	_, err := PublicPoint("zz")
	require.ErrorAs(t, err, &cryptoErr)
	_, err = PublicPoint(strings.Repeat("ff", 32))
	require.ErrorAs(t, err, &cryptoErr)
}
