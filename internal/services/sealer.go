package services

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ieraasyl/SatelliteFinder/internal/models"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrSealedDataInvalid is returned when a sealed blob cannot be opened:
// it was tampered with, belongs to another session, or was sealed under a
// different secret.
var ErrSealedDataInvalid = errors.New("sealed credentials invalid")

const sealInfo = "satfinder-credential-seal-v1"

// Sealer encrypts credentials before they reach a credential store.
//
// The key is derived from the session secret with HKDF-SHA256 and used with
// XChaCha20-Poly1305. The session ID is bound as additional data, so a blob
// copied to another session key does not open. Opening returns the secret
// byte-for-byte; it is replayed upstream for basic authentication.
type Sealer struct {
	aead cipher.AEAD
}

type sealedCredentials struct {
	Identity string `json:"i"`
	Secret   string `json:"s"`
}

// NewSealer derives the sealing key from secret.
func NewSealer(secret []byte) (*Sealer, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("sealer requires a non-empty secret")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(sealInfo)), key); err != nil {
		return nil, fmt.Errorf("HKDF derivation failed: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD: %w", err)
	}

	return &Sealer{aead: aead}, nil
}

// Seal encrypts creds for sessionID. The output is nonce || ciphertext.
func (s *Sealer) Seal(sessionID string, creds models.Credentials) ([]byte, error) {
	plaintext, err := json.Marshal(sealedCredentials{Identity: creds.Identity, Secret: creds.Secret})
	if err != nil {
		return nil, fmt.Errorf("failed to encode credentials: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return s.aead.Seal(nonce, nonce, plaintext, []byte(sessionID)), nil
}

// Open decrypts a blob produced by Seal for the same sessionID.
func (s *Sealer) Open(sessionID string, sealed []byte) (models.Credentials, error) {
	if len(sealed) < s.aead.NonceSize()+s.aead.Overhead() {
		return models.Credentials{}, ErrSealedDataInvalid
	}

	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(sessionID))
	if err != nil {
		return models.Credentials{}, ErrSealedDataInvalid
	}

	var decoded sealedCredentials
	if err := json.Unmarshal(plaintext, &decoded); err != nil {
		return models.Credentials{}, ErrSealedDataInvalid
	}

	return models.Credentials{Identity: decoded.Identity, Secret: decoded.Secret}, nil
}
