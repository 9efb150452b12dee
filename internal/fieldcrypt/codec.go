// Package fieldcrypt encrypts individual record fields with AES-256-GCM.
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// KeySize is the required key length in bytes (AES-256).
	KeySize = 32
	// NonceSize is the per-field random nonce length in bytes.
	NonceSize = 16
	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16

	selfTestProbe = "scribe field encryption self-test"
)

var (
	// ErrInvalidKey indicates the supplied key is not KeySize bytes.
	ErrInvalidKey = errors.New("fieldcrypt: invalid key")
	// ErrDecryption is returned for every decryption failure. The cause is never exposed.
	ErrDecryption = errors.New("fieldcrypt: decryption failed")
	// ErrEncryption indicates the cipher could not be initialised or the entropy source failed.
	ErrEncryption = errors.New("fieldcrypt: encryption failed")
)

// randomSource is swapped in tests that need to simulate entropy failures.
var randomSource io.Reader = rand.Reader

// EncryptedField pairs a ciphertext with the nonce and tag that authenticate it.
type EncryptedField struct {
	Ciphertext []byte
	Nonce      []byte
	Tag        []byte
}

// IsZero reports whether the field carries no encrypted payload at all.
func (f EncryptedField) IsZero() bool {
	return len(f.Ciphertext) == 0 && len(f.Nonce) == 0 && len(f.Tag) == 0
}

// Encrypt seals plaintext under key with a fresh random nonce.
func Encrypt(plaintext, key []byte) (EncryptedField, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return EncryptedField{}, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(randomSource, nonce); err != nil {
		return EncryptedField{}, fmt.Errorf("%w: nonce: %v", ErrEncryption, err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - TagSize
	ciphertext := append([]byte(nil), sealed[:split]...)
	tag := append([]byte(nil), sealed[split:]...)

	return EncryptedField{Ciphertext: ciphertext, Nonce: nonce, Tag: tag}, nil
}

// Decrypt authenticates and opens field under key.
// Every failure collapses to ErrDecryption so callers cannot tell which part was wrong.
func Decrypt(field EncryptedField, key []byte) ([]byte, error) {
	if len(key) != KeySize || len(field.Nonce) != NonceSize || len(field.Tag) != TagSize {
		return nil, ErrDecryption
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, ErrDecryption
	}

	sealed := make([]byte, 0, len(field.Ciphertext)+TagSize)
	sealed = append(sealed, field.Ciphertext...)
	sealed = append(sealed, field.Tag...)

	plaintext, err := aead.Open(nil, field.Nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	return aead, nil
}

// ParseKey decodes a base64 encoded deployment key and validates its length.
func ParseKey(encoded string) ([]byte, error) {
	trimmed := strings.TrimSpace(encoded)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	key, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: not base64", ErrInvalidKey)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	return key, nil
}

// Codec binds the field cipher to a single static key.
type Codec struct {
	key []byte
}

// NewCodec validates key and returns a Codec holding a private copy of it.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	return &Codec{key: append([]byte(nil), key...)}, nil
}

// Encrypt seals plaintext with the codec key.
func (c *Codec) Encrypt(plaintext []byte) (EncryptedField, error) {
	return Encrypt(plaintext, c.key)
}

// Decrypt opens field with the codec key.
func (c *Codec) Decrypt(field EncryptedField) ([]byte, error) {
	return Decrypt(field, c.key)
}

// EncryptString is Encrypt for UTF-8 text.
func (c *Codec) EncryptString(plaintext string) (EncryptedField, error) {
	return c.Encrypt([]byte(plaintext))
}

// DecryptString is Decrypt for UTF-8 text.
func (c *Codec) DecryptString(field EncryptedField) (string, error) {
	plaintext, err := c.Decrypt(field)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// SelfTest round-trips a fixed probe through the codec.
func (c *Codec) SelfTest() bool {
	field, err := c.EncryptString(selfTestProbe)
	if err != nil {
		return false
	}
	plaintext, err := c.DecryptString(field)
	return err == nil && plaintext == selfTestProbe
}
