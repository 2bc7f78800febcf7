package password

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// generateAlphabet leaves out characters that are easy to misread in an
// SMS or email: 0/O, 1/l/I.
const generateAlphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const minGeneratedLength = 8

// Generate returns a random password of length characters drawn uniformly
// from an unambiguous alphabet of letters and digits.
func Generate(length int) (string, error) {
	if length < minGeneratedLength {
		return "", errors.New("generated password length must be >= 8")
	}

	max := big.NewInt(int64(len(generateAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = generateAlphabet[n.Int64()]
	}
	return string(out), nil
}
