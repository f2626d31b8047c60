// Package cryptoutil seals sender OAuth tokens at rest.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Encryptor seals and opens token documents. The associated data binds a sealed value to
// the row it was written for; opening it with different associated data fails.
type Encryptor interface {
	Encrypt(plaintext, aad []byte) (string, error)
	Decrypt(sealed string, aad []byte) ([]byte, error)
}

// KeySize is the AES-256 key length.
const KeySize = 32

const sealedPrefixV1 = "gcm1:"

// ErrUnknownFormat is returned for values that were not produced by AESGCMEncryptor.
var ErrUnknownFormat = errors.New("unknown sealed token format")

// AESGCMEncryptor implements Encryptor using AES-256-GCM.
type AESGCMEncryptor struct {
	aead cipher.AEAD
}

var _ Encryptor = (*AESGCMEncryptor)(nil)

// NewAESGCMEncryptor constructs an AESGCMEncryptor. key must be KeySize bytes.
func NewAESGCMEncryptor(key []byte) (*AESGCMEncryptor, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("aes-gcm key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &AESGCMEncryptor{aead: aead}, nil
}

// KeyFromString derives a key from configuration. A 64 character hex string is used as
// the raw key; anything else is hashed with SHA-256.
func KeyFromString(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("encryption key is empty")
	}
	if decoded, err := hex.DecodeString(s); err == nil && len(decoded) == KeySize {
		return decoded, nil
	}
	sum := sha256.Sum256([]byte(s))
	return sum[:], nil
}

// Encrypt seals plaintext under a random nonce and returns "gcm1:" + base64(nonce||ct).
func (e *AESGCMEncryptor) Encrypt(plaintext, aad []byte) (string, error) {
	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	out := e.aead.Seal(nonce, nonce, plaintext, aad)
	return sealedPrefixV1 + base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a value produced by Encrypt with the same associated data.
func (e *AESGCMEncryptor) Decrypt(sealed string, aad []byte) ([]byte, error) {
	b64, ok := strings.CutPrefix(sealed, sealedPrefixV1)
	if !ok {
		return nil, ErrUnknownFormat
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode sealed token: %w", err)
	}
	n := e.aead.NonceSize()
	if len(raw) < n+e.aead.Overhead() {
		return nil, errors.New("sealed token too short")
	}
	pt, err := e.aead.Open(nil, raw[:n], raw[n:], aad)
	if err != nil {
		return nil, fmt.Errorf("open sealed token: %w", err)
	}
	return pt, nil
}
