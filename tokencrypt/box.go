package tokencrypt

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrCrypto is matched by every failure returned from Decrypt.
var ErrCrypto = errors.New("tokencrypt: unreadable ciphertext")

const hkdfInfo = "socialcast/token-encryption/v1"

// Error describes why a ciphertext could not be opened.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tokencrypt: %s: %v", e.Reason, e.Err)
	}
	return "tokencrypt: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrCrypto }

// Cipher encrypts and decrypts token material. Empty strings pass through unchanged.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

var _ Cipher = &Box{}

// Box seals values with XChaCha20-Poly1305 under a key derived from a master secret.
// Every ciphertext is prefixed with the id of the key that sealed it so older keys can
// stay around for decryption after the primary secret changes.
type Box struct {
	primary byte
	keys    map[byte]cipher.AEAD
}

// Option configures a Box.
type Option func(*Box) error

// WithPreviousSecret registers a decrypt-only key under the given id.
func WithPreviousSecret(id byte, secret string) Option {
	return func(b *Box) error {
		if id == b.primary {
			return fmt.Errorf("tokencrypt: key id %d already used by the primary key", id)
		}
		aead, err := newAEAD(secret)
		if err != nil {
			return err
		}
		b.keys[id] = aead
		return nil
	}
}

// WithKeyID sets the id written in front of new ciphertexts. Defaults to 1.
func WithKeyID(id byte) Option {
	return func(b *Box) error {
		aead := b.keys[b.primary]
		delete(b.keys, b.primary)
		b.primary = id
		b.keys[id] = aead
		return nil
	}
}

// New derives the primary key from masterSecret.
func New(masterSecret string, opts ...Option) (*Box, error) {
	aead, err := newAEAD(masterSecret)
	if err != nil {
		return nil, err
	}
	b := &Box{primary: 1, keys: map[byte]cipher.AEAD{1: aead}}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// DeriveKey expands secret into a chacha20poly1305 key with HKDF-SHA256.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("tokencrypt: master secret is empty")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("tokencrypt: derive key: %w", err)
	}
	return key, nil
}

func newAEAD(secret string) (cipher.AEAD, error) {
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("tokencrypt: init cipher: %w", err)
	}
	return aead, nil
}

// Encrypt seals plaintext. The empty string is returned as is.
func (b *Box) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead := b.keys[b.primary]
	out := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(plaintext)+aead.Overhead())
	out[0] = b.primary
	if _, err := rand.Read(out[1:]); err != nil {
		return "", fmt.Errorf("tokencrypt: generate nonce: %w", err)
	}
	out = aead.Seal(out, out[1:], []byte(plaintext), out[:1])
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Decrypt opens a value produced by Encrypt. The empty string is returned as is.
func (b *Box) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", &Error{Reason: "malformed encoding", Err: err}
	}
	if len(raw) < 1 {
		return "", &Error{Reason: "truncated ciphertext"}
	}
	aead, ok := b.keys[raw[0]]
	if !ok {
		return "", &Error{Reason: fmt.Sprintf("unknown key id %d", raw[0])}
	}
	if len(raw) < 1+aead.NonceSize()+aead.Overhead() {
		return "", &Error{Reason: "truncated ciphertext"}
	}
	nonce := raw[1 : 1+aead.NonceSize()]
	plain, err := aead.Open(nil, nonce, raw[1+aead.NonceSize():], raw[:1])
	if err != nil {
		return "", &Error{Reason: "authentication failed", Err: err}
	}
	return string(plain), nil
}
