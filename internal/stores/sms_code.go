package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const smsCodeRecordVersionV1 = 1

var (
	ErrSMSCodeNotFound         = errors.New("sms code not found")
	ErrSMSCodeMismatch         = errors.New("sms code mismatch")
	ErrSMSCodeOutOfTries       = errors.New("sms code out of tries")
	ErrSMSCodeRedisUnavailable = errors.New("sms code redis unavailable")
)

// checkSMSCodeLua atomically performs GET→tries check→compare→attempt bump.
// KEYS[1] = record key
// ARGV[1] = provided code hash (32 bytes)
// ARGV[2] = tries budget (0 disables the budget)
// ARGV[3] = "1" to delete the record when the budget is exhausted
// ARGV[4] = current unix timestamp
//
// Layout: version(1) attempts(2 big-endian) expiresAt(8 big-endian) codeHash(32) ...
//
// Returns the record bytes on a match, or an error string:
// "not_found", "expired", "out_of_tries", "mismatch".
var checkSMSCodeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local budget = tonumber(ARGV[2])
local clean = ARGV[3] == '1'
local nowUnix = tonumber(ARGV[4])

if string.byte(data, 1) ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local attempts = string.byte(data, 2) * 256 + string.byte(data, 3)

local expiresAt = 0
for i = 4, 11 do
  expiresAt = expiresAt * 256 + string.byte(data, i)
end
if nowUnix > expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

if budget > 0 and attempts >= budget then
  if clean then
    redis.call('DEL', KEYS[1])
  end
  return {err='out_of_tries'}
end

local storedHash = string.sub(data, 12, 43)
if storedHash ~= providedHash then
  attempts = attempts + 1
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs <= 0 then
    redis.call('DEL', KEYS[1])
    return {err='expired'}
  end
  local newData = string.sub(data, 1, 1) .. string.char(math.floor(attempts / 256), attempts % 256) .. string.sub(data, 4)
  redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
  return {err='mismatch'}
end

return data
`)

// SMSCodeRecord is the pending confirmation code sent to one phone number.
// Failed checks increment Attempts; a match leaves the record in place until
// it is deleted explicitly.
type SMSCodeRecord struct {
	ContactID string
	Phone     string
	CodeHash  [32]byte
	Attempts  uint16
	ExpiresAt int64
}

type SMSCodeStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewSMSCodeStore(redisClient redis.UniversalClient, prefix string) *SMSCodeStore {
	if prefix == "" {
		prefix = "grs"
	}
	return &SMSCodeStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *SMSCodeStore) key(phone string) string {
	return s.prefix + ":" + phone
}

// Save replaces any pending code for the phone, resetting its attempts.
func (s *SMSCodeStore) Save(ctx context.Context, record *SMSCodeRecord, ttl time.Duration) error {
	encoded, err := encodeSMSCodeRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(record.Phone), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSMSCodeRedisUnavailable, err)
	}
	return nil
}

// Check compares codeHash with the pending code for phone. A positive budget
// is checked before the comparison, so once Attempts reaches it every check
// fails with ErrSMSCodeOutOfTries whatever the code.
func (s *SMSCodeStore) Check(ctx context.Context, phone string, codeHash [32]byte, budget int, clean bool) (*SMSCodeRecord, error) {
	cleanArg := "0"
	if clean {
		cleanArg = "1"
	}
	if budget < 0 {
		budget = 0
	}

	result, err := checkSMSCodeLua.Run(ctx, s.redis,
		[]string{s.key(phone)},
		string(codeHash[:]),
		budget,
		cleanArg,
		s.now().Unix(),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found", "expired":
			return nil, ErrSMSCodeNotFound
		case "out_of_tries":
			return nil, ErrSMSCodeOutOfTries
		case "mismatch":
			return nil, ErrSMSCodeMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrSMSCodeRedisUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrSMSCodeRedisUnavailable)
	}

	record, err := decodeSMSCodeRecord([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSMSCodeRedisUnavailable, err)
	}

	// Lua string comparison is not constant-time.
	if subtle.ConstantTimeCompare(record.CodeHash[:], codeHash[:]) != 1 {
		return nil, ErrSMSCodeMismatch
	}

	return record, nil
}

// Delete removes the pending code. Deleting a missing record is not an error.
func (s *SMSCodeStore) Delete(ctx context.Context, phone string) error {
	if err := s.redis.Del(ctx, s.key(phone)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSMSCodeRedisUnavailable, err)
	}
	return nil
}

func encodeSMSCodeRecord(record *SMSCodeRecord) ([]byte, error) {
	if record == nil {
		return nil, errors.New("nil sms code record")
	}
	if record.Phone == "" {
		return nil, errors.New("sms code record requires phone")
	}
	if len(record.ContactID) > 65535 || len(record.Phone) > 65535 {
		return nil, errors.New("sms code record field too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(smsCodeRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	if err := writeString16(&buf, record.ContactID); err != nil {
		return nil, err
	}
	if err := writeString16(&buf, record.Phone); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeSMSCodeRecord(data []byte) (*SMSCodeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != smsCodeRecordVersionV1 {
		return nil, errors.New("invalid sms code record version")
	}

	record := &SMSCodeRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}
	if record.ContactID, err = readString16(reader); err != nil {
		return nil, err
	}
	if record.Phone, err = readString16(reader); err != nil {
		return nil, err
	}

	return record, nil
}
