package limiters

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type memoryCooldownStore struct {
	mu   sync.Mutex
	last map[string]time.Time
	err  error
}

func newMemoryCooldownStore() *memoryCooldownStore {
	return &memoryCooldownStore{last: make(map[string]time.Time)}
}

func (m *memoryCooldownStore) LastTime(_ context.Context, sessionID string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return time.Time{}, false, m.err
	}
	t, ok := m.last[sessionID]
	return t, ok, nil
}

func (m *memoryCooldownStore) SetLastTime(_ context.Context, sessionID string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[sessionID] = t
	return nil
}

func TestCooldownWindow(t *testing.T) {
	store := newMemoryCooldownStore()
	cd := NewCooldown(store, 60*time.Second)
	now := time.Unix(1700000000, 0)
	cd.now = func() time.Time { return now }
	ctx := context.Background()

	tests := []struct {
		advance time.Duration
		allowed bool
	}{
		{0, true},
		{30 * time.Second, false},
		// the rejected check above restarted the window
		{59 * time.Second, false},
		{60 * time.Second, true},
		{61 * time.Second, true},
	}
	for i, tc := range tests {
		now = now.Add(tc.advance)
		ok, err := cd.Check(ctx, "sid")
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if ok != tc.allowed {
			t.Fatalf("check %d: allowed=%v want %v", i, ok, tc.allowed)
		}
	}

	ok, _ := cd.Check(ctx, "other")
	if !ok {
		t.Fatal("sessions must not share a window")
	}
}

func TestCooldownDisabledAndErrors(t *testing.T) {
	var nilCooldown *Cooldown
	if ok, err := nilCooldown.Check(context.Background(), "sid"); !ok || err != nil {
		t.Fatalf("nil cooldown should allow, got %v %v", ok, err)
	}

	store := newMemoryCooldownStore()
	store.err = errors.New("down")
	cd := NewCooldown(store, time.Minute)
	if _, err := cd.Check(context.Background(), "sid"); !errors.Is(err, ErrCooldownUnavailable) {
		t.Fatalf("expected ErrCooldownUnavailable, got %v", err)
	}
}

func TestCooldownDisabledStillRecordsTime(t *testing.T) {
	store := newMemoryCooldownStore()
	cd := NewCooldown(store, 0)
	now := time.Unix(1700000000, 0)
	cd.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		now = now.Add(time.Second)
		ok, err := cd.Check(ctx, "sid")
		if err != nil || !ok {
			t.Fatalf("check %d: disabled cooldown must allow, got %v %v", i, ok, err)
		}
		last, found, _ := store.LastTime(ctx, "sid")
		if !found || !last.Equal(now) {
			t.Fatalf("check %d: expected marker %v, got %v (found=%v)", i, now, last, found)
		}
	}
}

func TestRecoveryLimiterFixedWindow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := NewRecoveryLimiter(rdb, RecoveryConfig{
		EnableIdentifierThrottle: true,
		EnableIPThrottle:         true,
		Window:                   time.Minute,
		MaxRequests:              2,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.CheckSend(ctx, "User@Example.com", "10.0.0.1"); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if err := l.CheckSend(ctx, "user@example.com", "10.0.0.2"); !errors.Is(err, ErrRecoveryRateLimited) {
		t.Fatalf("expected identifier throttle, got %v", err)
	}
	if err := l.CheckSend(ctx, "other@example.com", "10.0.0.1"); !errors.Is(err, ErrRecoveryRateLimited) {
		t.Fatalf("expected ip throttle, got %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if err := l.CheckSend(ctx, "user@example.com", "10.0.0.1"); err != nil {
		t.Fatalf("window should have reset, got %v", err)
	}
}

func TestRecoveryLimiterDisabled(t *testing.T) {
	var l *RecoveryLimiter
	if l.Enabled() {
		t.Fatal("nil limiter must be disabled")
	}
	if err := l.CheckSend(context.Background(), "a", "b"); err != nil {
		t.Fatalf("nil limiter should allow, got %v", err)
	}
	if NewRecoveryLimiter(nil, RecoveryConfig{EnableIdentifierThrottle: true}).Enabled() {
		t.Fatal("limiter without redis must be disabled")
	}
}
