package session

import (
	"context"
	"encoding/binary"
	"errors"
	"time"
)

// State keys. They are shared with any other component that reads the same
// session, so they must stay stable.
const (
	KeyLastTime     = "forgotpassword/last_time"
	KeySendDetails  = "forgotpassword/send_details"
	KeyLastResponse = "forgotpassword/last_response"
	KeyLocale       = "locale"
	KeyAuthContact  = "auth/contact_id"
)

// State wraps a [Store] with typed accessors for the recovery keys.
type State struct {
	store Store
}

// NewState returns a [State] over store.
func NewState(store Store) *State {
	return &State{store: store}
}

// LastTime returns the time of the last recovery request for the session.
// The boolean is false when nothing has been recorded yet.
func (s *State) LastTime(ctx context.Context, sessionID string) (time.Time, bool, error) {
	data, err := s.store.Get(ctx, sessionID, KeyLastTime)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	if len(data) != 8 {
		return time.Time{}, false, nil
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(data))), true, nil
}

// SetLastTime records t as the time of the last recovery request.
func (s *State) SetLastTime(ctx context.Context, sessionID string, t time.Time) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(t.UnixNano()))
	return s.store.Set(ctx, sessionID, KeyLastTime, buf[:])
}

// SendDetails returns the stored send details, or nil when none exist or the
// stored blob can no longer be decoded.
func (s *State) SendDetails(ctx context.Context, sessionID string) (*SendDetails, error) {
	data, err := s.store.Get(ctx, sessionID, KeySendDetails)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	details, err := DecodeSendDetails(data)
	if err != nil {
		return nil, nil
	}
	return details, nil
}

func (s *State) SetSendDetails(ctx context.Context, sessionID string, details *SendDetails) error {
	data, err := EncodeSendDetails(details)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, sessionID, KeySendDetails, data)
}

// LastResponse returns the serialized outcome of the previous request, or
// nil when none was stored.
func (s *State) LastResponse(ctx context.Context, sessionID string) ([]byte, error) {
	data, err := s.store.Get(ctx, sessionID, KeyLastResponse)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (s *State) SetLastResponse(ctx context.Context, sessionID string, data []byte) error {
	return s.store.Set(ctx, sessionID, KeyLastResponse, data)
}

// Locale returns the session locale, or "" when unset.
func (s *State) Locale(ctx context.Context, sessionID string) (string, error) {
	data, err := s.store.Get(ctx, sessionID, KeyLocale)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return string(data), err
}

func (s *State) SetLocale(ctx context.Context, sessionID, locale string) error {
	return s.store.Set(ctx, sessionID, KeyLocale, []byte(locale))
}

// AuthContact returns the id of the contact authenticated in this session.
func (s *State) AuthContact(ctx context.Context, sessionID string) (string, error) {
	data, err := s.store.Get(ctx, sessionID, KeyAuthContact)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return string(data), err
}

func (s *State) SetAuthContact(ctx context.Context, sessionID, contactID string) error {
	return s.store.Set(ctx, sessionID, KeyAuthContact, []byte(contactID))
}
