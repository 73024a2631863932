// Package vault encrypts private key material at rest and performs signatures
// without ever handing plaintext keys to callers.
//
// The AES-256-GCM key is derived one-way (HKDF-SHA256) from a process-wide
// secret, so the secret itself is never used directly as key material.
// Decryption fails closed: an authentication-tag mismatch or a misconfigured
// secret is a DecryptionError, never a silent fallback to plaintext.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	dErrors "beantrace/pkg/domain-errors"
)

const keySize = 32 // AES-256

// hkdfInfo binds derived keys to this usage; changing it invalidates all ciphertexts.
var hkdfInfo = []byte("beantrace/key-vault/v1")

// Vault performs authenticated encryption of private keys. Operations are
// CPU-bound and side-effect-free; a Vault is safe for concurrent use.
type Vault struct {
	aead cipher.AEAD
}

// New derives the vault key from the configured process secret.
// An empty secret is a misconfiguration and fails immediately.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return nil, dErrors.New(dErrors.CodeDecryption, "vault secret is not configured")
	}

	key := make([]byte, keySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, hkdfInfo)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDecryption, "derive vault key")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDecryption, "init vault cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDecryption, "init vault aead")
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals private key bytes. Output layout: nonce || ciphertext || tag.
func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "nothing to encrypt")
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate nonce")
	}
	return v.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Any tamper, truncation, or
// wrong-secret condition yields a DecryptionError.
func (v *Vault) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) <= v.aead.NonceSize() {
		return nil, dErrors.New(dErrors.CodeDecryption, "ciphertext too short")
	}
	nonce, sealed := ciphertext[:v.aead.NonceSize()], ciphertext[v.aead.NonceSize():]
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDecryption, "authentication failed")
	}
	return plaintext, nil
}

// Sign decrypts an Ed25519 private key, signs the payload, and zeroes the
// plaintext before returning. The cleartext key exists only inside this call.
func (v *Vault) Sign(encryptedKey, payload []byte) ([]byte, error) {
	keyBytes, err := v.Decrypt(encryptedKey)
	if err != nil {
		return nil, err
	}
	defer zero(keyBytes)

	if len(keyBytes) != ed25519.PrivateKeySize {
		return nil, dErrors.New(dErrors.CodeDecryption, "decrypted key has unexpected size")
	}
	return ed25519.Sign(ed25519.PrivateKey(keyBytes), payload), nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
