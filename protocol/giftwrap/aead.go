package giftwrap

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/hkdf"
	"meshnostr/engine/library"
	"meshnostr/protocol/identity"
)

// ErrDecryptionFailed covers every failure inside the encrypted layers: bad
// AEAD tag, truncated payload, bad base64, or a signature that does not
// verify. A partially decrypted message is never exposed.
var ErrDecryptionFailed = errors.New("decryption failed")

var hkdfSalt = []byte("nip44-v2")

const (
	nonceSize      = 12
	gcmTagSize     = 16
	minPayloadSize = nonceSize + gcmTagSize
)

// ConversationKey derives the symmetric key for a sender/recipient pair:
// the x coordinate of the ECDH point run through HKDF-SHA256 with the
// protocol salt. Both directions derive the same key.
func ConversationKey(own identity.Identity, peer library.Account) ([]byte, error) {
	keyBytes, err := own.KeyBytes()
	if err != nil {
		return nil, err
	}
	peerPoint, err := identity.PublicPoint(peer)
	if err != nil {
		return nil, err
	}
	priv, _ := btcec.PrivKeyFromBytes(keyBytes)
	shared := btcec.GenerateSharedSecret(priv, peerPoint)
	prk := hkdf.Extract(sha256.New, shared, hkdfSalt)
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, nil), key); err != nil {
		return nil, &identity.CryptoError{Reason: "hkdf expand failed: " + err.Error()}
	}
	return key, nil
}

// Encrypt seals plaintext with AES-256-GCM under a random 12 byte nonce and
// returns base64(nonce || ciphertext || tag).
func Encrypt(plaintext []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", &identity.CryptoError{Reason: "bad AEAD key length"}
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", &identity.CryptoError{Reason: err.Error()}
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", &identity.CryptoError{Reason: "nonce generation failed"}
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Payloads shorter than nonce+tag are rejected
// before any cipher work.
func Decrypt(payload string, key []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	if len(raw) < minPayloadSize {
		return nil, ErrDecryptionFailed
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &identity.CryptoError{Reason: "bad AEAD key length"}
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &identity.CryptoError{Reason: err.Error()}
	}
	plaintext, err := gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
