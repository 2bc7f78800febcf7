package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

const (
	tokenSecretSize = 32
	minCodeDigits   = 4
	maxCodeDigits   = 10
)

// NewToken returns a base64url token carrying 32 random bytes.
func NewToken() (string, error) {
	var raw [tokenSecretSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashSecret is the storage key form of a token or code. Plaintext secrets
// never reach Redis.
func HashSecret(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}

// NewNumericCode returns a uniformly random decimal code.
func NewNumericCode(digits int) (string, error) {
	if digits < minCodeDigits || digits > maxCodeDigits {
		return "", errors.New("invalid code digits")
	}

	var b strings.Builder
	b.Grow(digits)

	ten := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}

// NewSessionID returns a 16-byte base64url identifier.
func NewSessionID() (string, error) {
	var sid [16]byte
	if _, err := rand.Read(sid[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sid[:]), nil
}
