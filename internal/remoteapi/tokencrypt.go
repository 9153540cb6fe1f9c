// Package remoteapi implements spec.md §4.6 (bearer-token lifecycle) and
// the HTTP surface of §6's "Remote auto-segmentation HTTP API": upload,
// status, download, notify and health calls.
package remoteapi

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/pbkdf2"

	"github.com/draw-health/gateway/internal/cos"
)

var (
	errShortCiphertext = errors.New("sealed token shorter than salt+nonce")
	errDecryptFailed   = errors.New("token decryption failed: wrong passphrase or corrupted data")
)

const (
	pbkdf2Iterations = 100000
	keyLen           = 32
	saltLen          = 16
	nonceLen         = 24
)

// TokenCipher encrypts/decrypts bearer and refresh tokens at rest in the
// SystemConfiguration row, using a passphrase-derived key so the catalog
// file alone doesn't leak live credentials. Grounded on the teacher's
// go.mod carrying golang.org/x/crypto for exactly this combination
// (nacl/secretbox authenticated encryption, pbkdf2 key derivation) even
// though the teacher itself applies it to a different secret (node join
// tokens, not retrieved in this pack's source).
type TokenCipher struct {
	passphrase string
}

func NewTokenCipher(passphrase string) *TokenCipher {
	return &TokenCipher{passphrase: passphrase}
}

// Seal encrypts plaintext, returning salt||nonce||ciphertext.
func (c *TokenCipher) Seal(plaintext string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	var nonce [nonceLen]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	key := c.deriveKey(salt)

	out := make([]byte, 0, saltLen+nonceLen+len(plaintext)+secretbox.Overhead)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, []byte(plaintext), &nonce, &key)
	return out, nil
}

// Open reverses Seal.
func (c *TokenCipher) Open(sealed []byte) (string, error) {
	if len(sealed) < saltLen+nonceLen {
		return "", cos.NewError(cos.IntegrityFailure, "token", errShortCiphertext)
	}
	salt := sealed[:saltLen]
	var nonce [nonceLen]byte
	copy(nonce[:], sealed[saltLen:saltLen+nonceLen])
	ciphertext := sealed[saltLen+nonceLen:]

	key := c.deriveKey(salt)
	plain, ok := secretbox.Open(nil, ciphertext, &nonce, &key)
	if !ok {
		return "", cos.NewError(cos.IntegrityFailure, "token", errDecryptFailed)
	}
	return string(plain), nil
}

func (c *TokenCipher) deriveKey(salt []byte) [keyLen]byte {
	derived := pbkdf2.Key([]byte(c.passphrase), salt, pbkdf2Iterations, keyLen, sha256.New)
	var key [keyLen]byte
	copy(key[:], derived)
	return key
}
