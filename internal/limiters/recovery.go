package limiters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRecoveryRateLimited      = errors.New("recovery rate limited")
	ErrRecoveryRedisUnavailable = errors.New("recovery redis unavailable")
)

type RecoveryConfig struct {
	EnableIdentifierThrottle bool
	EnableIPThrottle         bool
	Window                   time.Duration
	MaxRequests              int
}

// RecoveryLimiter counts recovery sends per login and per client IP in
// fixed windows. It is nil-safe.
type RecoveryLimiter struct {
	redis  redis.UniversalClient
	config RecoveryConfig
}

func NewRecoveryLimiter(redisClient redis.UniversalClient, cfg RecoveryConfig) *RecoveryLimiter {
	return &RecoveryLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Enabled reports whether any throttle is switched on.
func (l *RecoveryLimiter) Enabled() bool {
	return l != nil && l.redis != nil && (l.config.EnableIdentifierThrottle || l.config.EnableIPThrottle)
}

// Window returns the fixed window length.
func (l *RecoveryLimiter) Window() time.Duration {
	if l == nil {
		return 0
	}
	return l.config.Window
}

func (l *RecoveryLimiter) CheckSend(ctx context.Context, login, ip string) error {
	if !l.Enabled() {
		return nil
	}
	if l.config.EnableIdentifierThrottle && login != "" {
		if err := l.enforceFixedWindow(ctx, recoveryIdentifierKey(login)); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, recoveryIPKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

func (l *RecoveryLimiter) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecoveryRedisUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRecoveryRedisUnavailable, err)
		}
	}

	if count > int64(l.config.MaxRequests) {
		return ErrRecoveryRateLimited
	}

	return nil
}

func recoveryIdentifierKey(login string) string {
	return "grl:" + strings.ToLower(strings.TrimSpace(login))
}

func recoveryIPKey(ip string) string {
	return "grlip:" + ip
}
