// Package secrets seals and opens credentials stored at rest, such as bounce mailbox passwords.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var ErrDecrypt = errors.New("unable to decrypt secret")

type Box struct {
	key [keySize]byte
}

// NewBox builds a Box from a base64 encoded 32 byte key.
func NewBox(encodedKey string) (*Box, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, errors.Wrap(err, "decode secret key")
	}
	if len(raw) != keySize {
		return nil, errors.Errorf("secret key must be %d bytes, got %d", keySize, len(raw))
	}
	box := &Box{}
	copy(box.key[:], raw)
	return box, nil
}

// Seal encrypts plaintext and returns base64(nonce || ciphertext).
func (b *Box) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", errors.Wrap(err, "generate nonce")
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (b *Box) Open(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.Wrap(ErrDecrypt, err.Error())
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
