package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const emailTokenRecordVersionV1 = 1

var (
	ErrEmailTokenNotFound         = errors.New("email token not found")
	ErrEmailTokenRedisUnavailable = errors.New("email token redis unavailable")
)

// EmailTokenRecord binds an issued recovery token to the contact and the
// address the link was mailed to.
type EmailTokenRecord struct {
	ContactID string
	Address   string
	ExpiresAt int64
}

type EmailTokenStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewEmailTokenStore(redisClient redis.UniversalClient, prefix string) *EmailTokenStore {
	if prefix == "" {
		prefix = "grt"
	}
	return &EmailTokenStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *EmailTokenStore) key(tokenHash [32]byte) string {
	return s.prefix + ":" + hex.EncodeToString(tokenHash[:])
}

func (s *EmailTokenStore) Save(ctx context.Context, tokenHash [32]byte, record *EmailTokenRecord, ttl time.Duration) error {
	encoded, err := encodeEmailTokenRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(tokenHash), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrEmailTokenRedisUnavailable, err)
	}
	return nil
}

// Get returns the record without consuming it. Expired or corrupt records
// read as not found.
func (s *EmailTokenStore) Get(ctx context.Context, tokenHash [32]byte) (*EmailTokenRecord, error) {
	data, err := s.redis.Get(ctx, s.key(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmailTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrEmailTokenRedisUnavailable, err)
	}

	record, err := decodeEmailTokenRecord(data)
	if err != nil {
		return nil, ErrEmailTokenNotFound
	}
	if s.now().Unix() > record.ExpiresAt {
		return nil, ErrEmailTokenNotFound
	}
	return record, nil
}

// Delete removes the record. Deleting a missing record is not an error.
func (s *EmailTokenStore) Delete(ctx context.Context, tokenHash [32]byte) error {
	if err := s.redis.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrEmailTokenRedisUnavailable, err)
	}
	return nil
}

func encodeEmailTokenRecord(record *EmailTokenRecord) ([]byte, error) {
	if record == nil {
		return nil, errors.New("nil email token record")
	}
	if len(record.ContactID) > 65535 || len(record.Address) > 65535 {
		return nil, errors.New("email token record field too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(emailTokenRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := writeString16(&buf, record.ContactID); err != nil {
		return nil, err
	}
	if err := writeString16(&buf, record.Address); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeEmailTokenRecord(data []byte) (*EmailTokenRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != emailTokenRecordVersionV1 {
		return nil, errors.New("invalid email token record version")
	}

	record := &EmailTokenRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if record.ContactID, err = readString16(reader); err != nil {
		return nil, err
	}
	if record.Address, err = readString16(reader); err != nil {
		return nil, err
	}

	return record, nil
}

func writeString16(buf *bytes.Buffer, s string) error {
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString16(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
