// Package cipher implements the symmetric keystream cipher used for
// computation input and output ciphertexts. The cluster and the client hold
// a 32-byte shared secret; each message carries its own random 16-byte nonce
// so identical plaintexts never produce identical ciphertexts.
//
// This stands in for the cluster's threshold encryption at the protocol
// boundary; the orchestrator only ever sees sealed bytes.
package cipher

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// KeySize is the shared secret length in bytes.
const KeySize = 32

// NonceSize is the per-message nonce length in bytes.
const NonceSize = 16

// Key is the shared secret between one client and the cluster.
type Key [KeySize]byte

// NewKey generates a random shared secret.
func NewKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return Key{}, fmt.Errorf("keygen: %w", err)
	}
	return k, nil
}

// keystream derives length bytes from SHA256(key || nonce || counter) blocks.
func keystream(key Key, nonce [NonceSize]byte, length int) []byte {
	stream := make([]byte, 0, length+sha256.Size)
	var counter uint64
	buf := make([]byte, KeySize+NonceSize+8)
	copy(buf, key[:])
	copy(buf[KeySize:], nonce[:])
	for len(stream) < length {
		binary.BigEndian.PutUint64(buf[KeySize+NonceSize:], counter)
		h := sha256.Sum256(buf)
		stream = append(stream, h[:]...)
		counter++
	}
	return stream[:length]
}

// Seal encrypts plaintext under the key with a fresh nonce.
// Output layout: nonce || ciphertext.
func Seal(key Key, plaintext []byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return SealWithNonce(key, nonce, plaintext), nil
}

// SealWithNonce encrypts plaintext under the key with the given nonce.
// Callers must never reuse a nonce under one key.
func SealWithNonce(key Key, nonce [NonceSize]byte, plaintext []byte) []byte {
	out := make([]byte, NonceSize+len(plaintext))
	copy(out, nonce[:])
	stream := keystream(key, nonce, len(plaintext))
	for i, b := range plaintext {
		out[NonceSize+i] = b ^ stream[i]
	}
	return out
}

// Open decrypts a sealed message produced by Seal.
func Open(key Key, sealed []byte) ([]byte, error) {
	if len(sealed) < NonceSize {
		return nil, fmt.Errorf("sealed message too short: %d bytes", len(sealed))
	}
	var nonce [NonceSize]byte
	copy(nonce[:], sealed[:NonceSize])
	body := sealed[NonceSize:]
	stream := keystream(key, nonce, len(body))
	out := make([]byte, len(body))
	for i, b := range body {
		out[i] = b ^ stream[i]
	}
	return out, nil
}
