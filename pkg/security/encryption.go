package security

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrInvalidKeySize = errors.New("invalid key size")
	ErrEncryption     = errors.New("encryption failed")
	ErrDecryption     = errors.New("decryption failed")
)

// Encryptor provides a generic interface for encryption/decryption
type Encryptor interface {
	Encrypt(data []byte) ([]byte, error)
	Decrypt(data []byte) ([]byte, error)
}

// NewXChaChaEncryptor creates an XChaCha20-Poly1305 encryptor. The random
// 24-byte nonce is prepended to every ciphertext.
func NewXChaChaEncryptor(key []byte) (Encryptor, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, ErrInvalidKeySize
	}
	return &xchachaEncryptor{aead: aead}, nil
}

type xchachaEncryptor struct {
	aead cipher.AEAD
}

func (x *xchachaEncryptor) Encrypt(data []byte) ([]byte, error) {
	nonce := make([]byte, x.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, ErrEncryption
	}
	return x.aead.Seal(nonce, nonce, data, nil), nil
}

func (x *xchachaEncryptor) Decrypt(data []byte) ([]byte, error) {
	nonceSize := x.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, ErrDecryption
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := x.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

// IDProtector encrypts national identity numbers at rest and derives a
// keyed digest so they can still be matched exactly.
type IDProtector struct {
	enc       Encryptor
	digestKey []byte
}

// NewIDProtector takes a hex-encoded 32-byte key.
func NewIDProtector(hexKey string) (*IDProtector, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKeySize
	}
	enc, err := NewXChaChaEncryptor(key)
	if err != nil {
		return nil, err
	}

	// separate the digest key from the encryption key
	h, _ := blake2b.New256(key)
	h.Write([]byte("nric-digest"))
	return &IDProtector{enc: enc, digestKey: h.Sum(nil)}, nil
}

// NormalizeID strips separators and upper-cases, so "900101-14-5678" and
// "900101145678" match.
func NormalizeID(id string) string {
	return strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(id)))
}

func (p *IDProtector) Seal(id string) ([]byte, error) {
	return p.enc.Encrypt([]byte(NormalizeID(id)))
}

func (p *IDProtector) Open(sealed []byte) (string, error) {
	plain, err := p.enc.Decrypt(sealed)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Digest is stable for a given key and normalized id.
func (p *IDProtector) Digest(id string) string {
	h, _ := blake2b.New256(p.digestKey)
	h.Write([]byte(NormalizeID(id)))
	return hex.EncodeToString(h.Sum(nil))
}
