package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fernet/fernet-go"
)

// ErrUndecryptable is returned when no configured key opens stored content.
var ErrUndecryptable = errors.New("message content could not be decrypted")

// Encryptor seals message content at rest with AES-256-GCM. Rows written
// as Fernet tokens still open with the secret itself or any legacy key
// that decodes as a Fernet key.
type Encryptor struct {
	gcm    cipher.AEAD
	legacy []*fernet.Key
}

func NewEncryptor(secret []byte, legacyKeys []string) (*Encryptor, error) {
	if len(secret) == 0 {
		return nil, errors.New("encryption key must not be empty")
	}
	gcm, err := newGCM(secret)
	if err != nil {
		return nil, err
	}
	candidates := append([]string{string(secret)}, legacyKeys...)
	return &Encryptor{gcm: gcm, legacy: fernetKeys(candidates)}, nil
}

// newGCM derives the AES-256 key as SHA-256 of the secret.
func newGCM(secret []byte) (cipher.AEAD, error) {
	sum := sha256.Sum256(secret)
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func fernetKeys(raw []string) []*fernet.Key {
	var keys []*fernet.Key
	for _, r := range raw {
		if k, err := fernet.DecodeKey(strings.TrimSpace(r)); err == nil {
			keys = append(keys, k)
		}
	}
	return keys
}

// Encrypt returns base64(nonce || ciphertext).
func (e *Encryptor) Encrypt(plain string) (string, error) {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := e.gcm.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens content written by Encrypt, falling back to the Fernet
// keys for older rows.
func (e *Encryptor) Decrypt(stored string) (string, error) {
	if plain, ok := e.openGCM(stored); ok {
		return plain, nil
	}
	if len(e.legacy) > 0 {
		if plain := fernet.VerifyAndDecrypt([]byte(stored), 0, e.legacy); plain != nil {
			return string(plain), nil
		}
	}
	return "", ErrUndecryptable
}

func (e *Encryptor) openGCM(stored string) (string, bool) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	ns := e.gcm.NonceSize()
	if err != nil || len(raw) < ns {
		return "", false
	}
	plain, err := e.gcm.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", false
	}
	return string(plain), true
}
