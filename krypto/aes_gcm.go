package krypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrSealedValue is returned by Open when the input is not something Seal produced
// with the same key.
var ErrSealedValue = errors.New("krypto: invalid sealed value")

// Service seals short secrets (provider tokens) for storage at rest.
type Service interface {
	Encrypt(data []byte) (ciphertext, nonce []byte, err error)
	Decrypt(ciphertext, nonce []byte) ([]byte, error)
	// Seal returns base64(nonce || ciphertext).
	Seal(plaintext string) (string, error)
	// Open reverses Seal.
	Open(sealed string) (string, error)
}

type aesGCMService struct {
	gcm cipher.AEAD
}

// NewAESGCMService creates an AES-GCM service. key is either the raw 16, 24 or
// 32 byte key or its standard base64 encoding as produced by GenerateAESKey.
func NewAESGCMService(key string) (Service, error) {
	raw := []byte(key)
	if !validAESKeySize(len(raw)) {
		decoded, err := base64.StdEncoding.DecodeString(key)
		if err != nil || !validAESKeySize(len(decoded)) {
			return nil, fmt.Errorf("failed to create cipher block: key must be 16, 24 or 32 bytes (raw or base64), got %d", len(raw))
		}
		raw = decoded
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher block: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &aesGCMService{gcm: gcm}, nil
}

// Encrypt encrypts byte data using AES-GCM
func (s *aesGCMService) Encrypt(data []byte) ([]byte, []byte, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return s.gcm.Seal(nil, nonce, data, nil), nonce, nil
}

// Decrypt decrypts byte data using AES-GCM
func (s *aesGCMService) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	if len(nonce) != s.gcm.NonceSize() {
		return nil, fmt.Errorf("invalid nonce size: got %d, want %d", len(nonce), s.gcm.NonceSize())
	}
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func (s *aesGCMService) Seal(plaintext string) (string, error) {
	ciphertext, nonce, err := s.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(append(nonce, ciphertext...)), nil
}

func (s *aesGCMService) Open(sealed string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealedValue, err)
	}

	n := s.gcm.NonceSize()
	if len(blob) < n+s.gcm.Overhead() {
		return "", ErrSealedValue
	}

	plaintext, err := s.Decrypt(blob[n:], blob[:n])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealedValue, err)
	}
	return string(plaintext), nil
}

// GenerateAESKey returns a random base64-encoded key of keySize bytes.
func GenerateAESKey(keySize int) (string, error) {
	if !validAESKeySize(keySize) {
		return "", fmt.Errorf("invalid key size: must be 16, 24, or 32 bytes for AES-128, AES-192, or AES-256")
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate random key: %w", err)
	}

	return base64.StdEncoding.EncodeToString(key), nil
}

func validAESKeySize(n int) bool {
	return n == 16 || n == 24 || n == 32
}
