package secret

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// AffixLength is the number of digest characters placed on each side of an
// SMS confirmation code.
const AffixLength = 16

const codeSalt = "xxuuw:dswr4$h5t392n1jlkdfa/.`w"

var (
	// ErrMalformed is returned when a raw hash cannot carry the requested shape.
	ErrMalformed = errors.New("malformed recovery hash")
	// ErrEmptyCode is returned when wrapping an empty confirmation code.
	ErrEmptyCode = errors.New("empty confirmation code")
)

// Kind tags the shape of a [Hash].
type Kind uint8

const (
	// KindEmailToken is a raw token issued by the email channel.
	KindEmailToken Kind = iota + 1
	// KindSMSCode is a confirmation code wrapped between two digest affixes.
	KindSMSCode
)

func (k Kind) String() string {
	switch k {
	case KindEmailToken:
		return "email_token"
	case KindSMSCode:
		return "sms_code"
	default:
		return "unknown"
	}
}

// Hash is a recovery hash in one of its two shapes. The zero value is empty.
type Hash struct {
	kind   Kind
	token  string
	prefix string
	code   string
	suffix string
}

// EmailToken wraps a channel-issued token without transformation.
func EmailToken(token string) Hash {
	return Hash{kind: KindEmailToken, token: token}
}

// WrapCode builds an SMS hash around code using fresh random material.
func WrapCode(code string) (Hash, error) {
	if code == "" {
		return Hash{}, ErrEmptyCode
	}

	var noise [12]byte
	if _, err := rand.Read(noise[:]); err != nil {
		return Hash{}, err
	}

	material := make([]byte, 0, len(code)+len(codeSalt)+48)
	material = append(material, code...)
	material = strconv.AppendInt(material, time.Now().UnixNano(), 10)
	material = append(material, codeSalt...)
	for i := 0; i < len(noise); i += 4 {
		material = strconv.AppendUint(material, uint64(binary.BigEndian.Uint32(noise[i:i+4])), 10)
	}

	sum := md5.Sum(material)
	digest := hex.EncodeToString(sum[:])

	return Hash{
		kind:   KindSMSCode,
		prefix: digest[:AffixLength],
		code:   code,
		suffix: digest[AffixLength:],
	}, nil
}

// Parse reads raw as a hash of the given kind.
func Parse(raw string, kind Kind) (Hash, error) {
	switch kind {
	case KindEmailToken:
		if raw == "" {
			return Hash{}, ErrMalformed
		}
		return EmailToken(raw), nil
	case KindSMSCode:
		if len(raw) <= 2*AffixLength {
			return Hash{}, ErrMalformed
		}
		return Hash{
			kind:   KindSMSCode,
			prefix: raw[:AffixLength],
			code:   raw[AffixLength : len(raw)-AffixLength],
			suffix: raw[len(raw)-AffixLength:],
		}, nil
	default:
		return Hash{}, ErrMalformed
	}
}

// ExtractCode returns the middle segment of an SMS hash, or "" when raw is
// too short to carry one.
func ExtractCode(raw string) string {
	if len(raw) <= 2*AffixLength {
		return ""
	}
	return raw[AffixLength : len(raw)-AffixLength]
}

// Kind reports the shape of h.
func (h Hash) Kind() Kind {
	return h.kind
}

// IsZero reports whether h holds no value.
func (h Hash) IsZero() bool {
	return h.kind == 0
}

// Secret returns what the owning channel validates: the token for email,
// the confirmation code for SMS.
func (h Hash) Secret() string {
	if h.kind == KindSMSCode {
		return h.code
	}
	return h.token
}

// String returns the wire form of h.
func (h Hash) String() string {
	switch h.kind {
	case KindEmailToken:
		return h.token
	case KindSMSCode:
		return h.prefix + h.code + h.suffix
	default:
		return ""
	}
}
