package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/nbd-wtf/go-nostr"
	"meshnostr/engine/library"
)

// Identity is a secp256k1 keypair. PrivateKey and Account are hex encoded,
// Account being the x-only public key as used on the wire.
type Identity struct {
	PrivateKey string
	Account    library.Account
	CreatedAt  time.Time
}

// CryptoError covers malformed or out-of-range key material. It is returned
// instead of panicking so callers can surface it.
type CryptoError struct {
	Reason string
}

func (e *CryptoError) Error() string {
	return "crypto: " + e.Reason
}

const deriveMaxIterations = 10

// Generate returns a fresh random identity.
func Generate() Identity {
	sk := nostr.GeneratePrivateKey()
	id, err := FromPrivateKey(sk)
	if err != nil {
		//a freshly generated key is always in range
		library.LogCLI(err.Error(), 0)
	}
	return id
}

// FromPrivateKey builds an Identity from a hex private key, rejecting
// scalars that are zero or not below the curve order.
func FromPrivateKey(privateKeyHex string) (Identity, error) {
	keyBytes, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return Identity{}, &CryptoError{Reason: fmt.Sprintf("private key is not valid hex: %s", err)}
	}
	if len(keyBytes) != 32 {
		return Identity{}, &CryptoError{Reason: fmt.Sprintf("private key must be 32 bytes, got %d", len(keyBytes))}
	}
	if !validScalar(keyBytes) {
		return Identity{}, &CryptoError{Reason: "private key scalar is zero or exceeds the curve order"}
	}
	_, pubKey := btcec.PrivKeyFromBytes(keyBytes)
	return Identity{
		PrivateKey: hex.EncodeToString(keyBytes),
		Account:    hex.EncodeToString(xOnly(pubKey)),
		CreatedAt:  time.Now(),
	}, nil
}

// Derive deterministically derives an identity for a context string from the
// device seed. The same (seed, context) always yields the same identity.
// Candidate scalars come from HMAC-SHA256(seed, context||iteration); after
// ten invalid candidates it falls back to SHA256(seed||context).
func Derive(seed []byte, context string) (Identity, error) {
	for i := 0; i < deriveMaxIterations; i++ {
		mac := hmac.New(sha256.New, seed)
		mac.Write([]byte(fmt.Sprintf("%s%d", context, i)))
		candidate := mac.Sum(nil)
		if validScalar(candidate) {
			return FromPrivateKey(hex.EncodeToString(candidate))
		}
	}
	h := sha256.New()
	h.Write(seed)
	h.Write([]byte(context))
	fallback := h.Sum(nil)
	if !validScalar(fallback) {
		return Identity{}, &CryptoError{Reason: "could not derive a valid key for context " + context}
	}
	return FromPrivateKey(hex.EncodeToString(fallback))
}

// PublicPoint recovers a full curve point from an x-only public key, trying
// the even-y (0x02) parity first and falling back to 0x03.
func PublicPoint(account library.Account) (*btcec.PublicKey, error) {
	xBytes, err := hex.DecodeString(account)
	if err != nil {
		return nil, &CryptoError{Reason: fmt.Sprintf("public key is not valid hex: %s", err)}
	}
	if len(xBytes) != 32 {
		return nil, &CryptoError{Reason: fmt.Sprintf("x-only public key must be 32 bytes, got %d", len(xBytes))}
	}
	for _, prefix := range []byte{0x02, 0x03} {
		compressed := append([]byte{prefix}, xBytes...)
		if pub, err := btcec.ParsePubKey(compressed); err == nil {
			return pub, nil
		}
	}
	return nil, &CryptoError{Reason: "x coordinate is not on the curve"}
}

// KeyBytes returns the identity's private scalar as 32 big-endian bytes.
func (id Identity) KeyBytes() ([]byte, error) {
	keyBytes, err := hex.DecodeString(id.PrivateKey)
	if err != nil || len(keyBytes) != 32 {
		return nil, &CryptoError{Reason: "identity holds a malformed private key"}
	}
	return keyBytes, nil
}

func validScalar(b []byte) bool {
	k := new(big.Int).SetBytes(b)
	if k.Sign() == 0 {
		return false
	}
	return k.Cmp(btcec.S256().N) < 0
}

func xOnly(pub *btcec.PublicKey) []byte {
	//big.Int drops leading zeros, pad back to 32
	x := pub.X().Bytes()
	padded := make([]byte, 32)
	copy(padded[32-len(x):], x)
	return padded
}
