package codec

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrInvalidKey is returned when the configured key is not 32 bytes of base64
	ErrInvalidKey = errors.New("codec: content key must be base64 encoded 32 bytes")
	// ErrMalformed is returned for blobs that are not valid ciphertext
	ErrMalformed = errors.New("codec: malformed ciphertext")
)

// Codec encrypts message text at rest with a single process-wide key
type Codec struct {
	aead cipher.AEAD
}

// New creates a Codec from a raw 32 byte key
func New(key []byte) (*Codec, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// NewFromBase64 creates a Codec from a standard or url base64 encoded key
func NewFromBase64(encoded string) (*Codec, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		key, err = base64.URLEncoding.DecodeString(encoded)
		if err != nil {
			return nil, ErrInvalidKey
		}
	}
	return New(key)
}

// GenerateKey returns a fresh base64 encoded key
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Encrypt seals plaintext and returns base64url(nonce || ciphertext)
func (c *Codec) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("codec: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt
func (c *Codec) Decrypt(blob string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(blob)
	if err != nil {
		return "", ErrMalformed
	}
	if len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return "", ErrMalformed
	}
	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("codec: open: %w", err)
	}
	return string(plain), nil
}

// DecryptOrPlaceholder never fails; undecryptable blobs become a visible placeholder
func (c *Codec) DecryptOrPlaceholder(blob string) string {
	plain, err := c.Decrypt(blob)
	if err != nil {
		return constant.UndecryptablePlaceholder
	}
	return plain
}
