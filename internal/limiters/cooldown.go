package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrCooldownUnavailable = errors.New("cooldown store unavailable")

// CooldownStore persists the last request time per session.
type CooldownStore interface {
	LastTime(ctx context.Context, sessionID string) (time.Time, bool, error)
	SetLastTime(ctx context.Context, sessionID string, t time.Time) error
}

// Cooldown enforces a minimum interval between recovery sends from one
// session. Every check restarts the window, whether it passes or not.
type Cooldown struct {
	store   CooldownStore
	timeout time.Duration
	now     func() time.Time
}

func NewCooldown(store CooldownStore, timeout time.Duration) *Cooldown {
	return &Cooldown{
		store:   store,
		timeout: timeout,
		now:     time.Now,
	}
}

// Timeout returns the configured interval.
func (c *Cooldown) Timeout() time.Duration {
	if c == nil {
		return 0
	}
	return c.timeout
}

// Check reports whether at least the configured timeout has passed since the
// previous check for sessionID, then records the current time. The time is
// recorded even when the timeout is zero.
func (c *Cooldown) Check(ctx context.Context, sessionID string) (bool, error) {
	if c == nil {
		return true, nil
	}

	now := c.now()
	if c.timeout <= 0 {
		if err := c.store.SetLastTime(ctx, sessionID, now); err != nil {
			return false, fmt.Errorf("%w: %v", ErrCooldownUnavailable, err)
		}
		return true, nil
	}

	last, ok, err := c.store.LastTime(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCooldownUnavailable, err)
	}
	if err := c.store.SetLastTime(ctx, sessionID, now); err != nil {
		return false, fmt.Errorf("%w: %v", ErrCooldownUnavailable, err)
	}

	if !ok {
		return true, nil
	}
	return now.Sub(last) >= c.timeout, nil
}
