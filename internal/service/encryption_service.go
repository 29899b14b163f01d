package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/nerava/nova/pkg/apperror"
)

// AESEncryptionService implements ports.EncryptionService using AES-256-GCM
// with an ordered key ring: the first key encrypts, decryption tries each
// key in order so keys can rotate without re-encrypting everything at once.
// Secrets sealed under a key that has left the ring fail to decrypt, which
// surfaces to callers as a re-authorization condition.
type AESEncryptionService struct {
	keys [][]byte // 32-byte keys, current first
}

// NewAESEncryptionService creates the service from hex-encoded keys.
// Each key must be a 64-character hex string (32 bytes decoded).
func NewAESEncryptionService(hexKeys []string) (*AESEncryptionService, error) {
	if len(hexKeys) == 0 {
		return nil, fmt.Errorf("no encryption keys configured")
	}
	keys := make([][]byte, 0, len(hexKeys))
	for i, hk := range hexKeys {
		key, err := hex.DecodeString(hk)
		if err != nil {
			return nil, fmt.Errorf("decoding AES key %d: %w", i, err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("AES key %d must be 32 bytes, got %d", i, len(key))
		}
		keys = append(keys, key)
	}
	return &AESEncryptionService{keys: keys}, nil
}

// Encrypt encrypts plaintext under the current (first) key.
// Returns hex-encoded string: nonce + ciphertext.
func (s *AESEncryptionService) Encrypt(plaintext string) (string, error) {
	if len(s.keys) == 0 {
		return "", apperror.ErrEncryptionKeyUnavailable(fmt.Errorf("empty key ring"))
	}

	aesGCM, err := gcmFor(s.keys[0])
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	ciphertext := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(ciphertext), nil
}

// Decrypt decrypts a hex-encoded ciphertext, trying each key in ring order.
func (s *AESEncryptionService) Decrypt(ciphertextHex string) (string, error) {
	ciphertext, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}

	var lastErr error
	for _, key := range s.keys {
		aesGCM, err := gcmFor(key)
		if err != nil {
			return "", err
		}

		nonceSize := aesGCM.NonceSize()
		if len(ciphertext) < nonceSize {
			return "", fmt.Errorf("ciphertext too short")
		}

		nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
		plaintext, err := aesGCM.Open(nil, nonce, sealed, nil)
		if err == nil {
			return string(plaintext), nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("decrypting with %d key(s): %w", len(s.keys), lastErr)
}

func gcmFor(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return aesGCM, nil
}
