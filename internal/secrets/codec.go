package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
)

var (
	// ErrNoMasterKey indicates no master secret is configured
	ErrNoMasterKey = errors.New("no master key configured")
	// ErrDecryptFailed indicates the token is corrupt or was encrypted under a different key
	ErrDecryptFailed = errors.New("credential decryption failed")
)

// Codec encrypts and decrypts account credentials with AES-256-GCM.
// The cipher key is the SHA-256 hash of the configured master secret.
type Codec struct {
	key    []byte
	logger *slog.Logger
}

// NewCodec creates a new credential codec. An empty masterKey is allowed;
// Encrypt and Decrypt then fail with ErrNoMasterKey.
func NewCodec(masterKey string, logger *slog.Logger) *Codec {
	c := &Codec{logger: logger.With("component", "secrets")}
	if masterKey != "" {
		sum := sha256.Sum256([]byte(masterKey))
		c.key = sum[:]
	}
	return c
}

// Encrypt encrypts a plaintext credential and returns a base64 token
// encoding nonce, auth tag and ciphertext
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if c.key == nil {
		return "", ErrNoMasterKey
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decodes a token produced by Encrypt and returns the plaintext.
// Returns ErrDecryptFailed if the token was tampered with or encrypted
// under a different master key.
func (c *Codec) Decrypt(token string) (string, error) {
	if c.key == nil {
		return "", ErrNoMasterKey
	}

	ciphertext, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", ErrDecryptFailed
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", ErrDecryptFailed
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}

	return string(plaintext), nil
}

// DecryptOrPlaintext decrypts a stored credential, falling back to the
// stored value itself when it is not a valid token. Accounts created before
// encryption was introduced store plaintext passwords; treating a failed
// decrypt as legacy plaintext keeps those working. If the value is actually
// garbage, login fails later as a connection error.
func (c *Codec) DecryptOrPlaintext(stored string) string {
	plaintext, err := c.Decrypt(stored)
	if err != nil {
		c.logger.Warn("credential decrypt failed, using stored value as plaintext", "error", err)
		return stored
	}
	return plaintext
}
