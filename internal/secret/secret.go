// Package secret wraps fernet for the two things this service encrypts:
// the stored IBKR flex token and the short-lived API time token.
package secret

import (
	"crypto/sha256"
	"errors"
	"time"

	"github.com/fernet/fernet-go"
)

// ErrInvalidToken is returned when a token fails verification or has expired.
var ErrInvalidToken = errors.New("invalid or expired token")

// NoExpiry disables the TTL check in Decrypt.
const NoExpiry time.Duration = -1

// Box encrypts and decrypts with one fernet key.
type Box struct {
	key *fernet.Key
}

// NewBox builds a Box from a secret. A base64 fernet key is used as is;
// any other non-empty string is hashed into a key.
func NewBox(secret string) (*Box, error) {
	if secret == "" {
		return nil, errors.New("empty encryption secret")
	}
	if k, err := fernet.DecodeKey(secret); err == nil {
		return &Box{key: k}, nil
	}
	sum := sha256.Sum256([]byte(secret))
	k := fernet.Key(sum)
	return &Box{key: &k}, nil
}

// Encrypt returns a fernet token for plaintext.
func (b *Box) Encrypt(plaintext string) (string, error) {
	tok, err := fernet.EncryptAndSign([]byte(plaintext), b.key)
	if err != nil {
		return "", err
	}
	return string(tok), nil
}

// Decrypt verifies token and returns its plaintext. Tokens older than ttl
// are rejected unless ttl is NoExpiry.
func (b *Box) Decrypt(token string, ttl time.Duration) (string, error) {
	msg := fernet.VerifyAndDecrypt([]byte(token), ttl, []*fernet.Key{b.key})
	if msg == nil {
		return "", ErrInvalidToken
	}
	return string(msg), nil
}
