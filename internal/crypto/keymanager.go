// Package crypto provides custody of per-user venue signing keys, ed25519
// request signing and HMAC API authentication for the venue gateway.
package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
	// currentVersion is the encrypted-key JSON schema version.
	currentVersion = 1
)

// encryptedKeyJSON is the on-disk format for an encrypted signing seed.
type encryptedKeyJSON struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// EncryptKey encrypts a hex-encoded 32-byte ed25519 seed with a password
// using PBKDF2-HMAC-SHA256 key derivation and AES-256-GCM.
func EncryptKey(seedHex string, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	keyBytes, err := decodeSeed(seedHex)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	out := encryptedKeyJSON{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, keyBytes, nil)),
	}
	return json.MarshalIndent(out, "", "  ")
}

// DecryptKey decrypts a blob produced by EncryptKey and returns the seed as
// lowercase hex.
func DecryptKey(encryptedJSON []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}

	var stored encryptedKeyJSON
	if err := json.Unmarshal(encryptedJSON, &stored); err != nil {
		return "", fmt.Errorf("crypto: parsing encrypted key JSON: %w", err)
	}
	return stored.decrypt(password)
}

func (e encryptedKeyJSON) decrypt(password string) (string, error) {
	if e.Version != currentVersion {
		return "", fmt.Errorf("crypto: unsupported version %d", e.Version)
	}
	salt, err := base64.StdEncoding.DecodeString(e.Salt)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(e.Nonce)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(e.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	return hex.EncodeToString(plaintext), nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}

func decodeSeed(seedHex string) ([]byte, error) {
	keyBytes, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(seedHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid seed hex: %w", err)
	}
	if len(keyBytes) != ed25519.SeedSize {
		return nil, fmt.Errorf("crypto: expected %d-byte seed, got %d bytes", ed25519.SeedSize, len(keyBytes))
	}
	return keyBytes, nil
}

// KeyringConfig points at the encrypted keyring file.
type KeyringConfig struct {
	// Path is a JSON object mapping user id to an EncryptKey blob. The
	// reserved user id "*" is the fallback key for users without an entry.
	Path     string
	Password string

	// DefaultSeed is a hex seed used when no file is configured; intended
	// for paper trading and local runs.
	DefaultSeed string
}

// Keyring implements domain.KeyResolver over decrypted per-user seeds. Seeds
// are decrypted once at load and kept in memory.
type Keyring struct {
	mu    sync.RWMutex
	seeds map[string]string
}

const fallbackUser = "*"

// LoadKeyring decrypts every entry of the configured keyring file.
func LoadKeyring(cfg KeyringConfig) (*Keyring, error) {
	kr := &Keyring{seeds: make(map[string]string)}
	if cfg.Path == "" {
		if cfg.DefaultSeed == "" {
			return nil, errors.New("crypto: no keyring source configured (set Path or DefaultSeed)")
		}
		if _, err := decodeSeed(cfg.DefaultSeed); err != nil {
			return nil, err
		}
		kr.seeds[fallbackUser] = strings.TrimPrefix(strings.ToLower(cfg.DefaultSeed), "0x")
		return kr, nil
	}

	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("crypto: reading keyring file: %w", err)
	}
	var entries map[string]encryptedKeyJSON
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("crypto: parsing keyring file: %w", err)
	}
	for user, entry := range entries {
		seed, err := entry.decrypt(cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("crypto: keyring entry %s: %w", user, err)
		}
		kr.seeds[user] = seed
	}
	return kr, nil
}

// Add registers a seed for userID, replacing any previous one.
func (k *Keyring) Add(userID, seedHex string) error {
	if _, err := decodeSeed(seedHex); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.seeds[userID] = strings.TrimPrefix(strings.ToLower(seedHex), "0x")
	return nil
}

// SigningKey returns the hex seed for userID, falling back to the "*" entry.
func (k *Keyring) SigningKey(_ context.Context, userID string) (string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if seed, ok := k.seeds[userID]; ok {
		return seed, nil
	}
	if seed, ok := k.seeds[fallbackUser]; ok {
		return seed, nil
	}
	return "", fmt.Errorf("crypto: signing key for user %s: %w", userID, domain.ErrNotFound)
}

// Len returns the number of keys in the ring, fallback included.
func (k *Keyring) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.seeds)
}

var _ domain.KeyResolver = (*Keyring)(nil)
