package stores

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestEmailTokenStoreSaveGetDelete(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewEmailTokenStore(rdb, "")
	ctx := context.Background()
	hash := sha256.Sum256([]byte("token-1"))

	err := store.Save(ctx, hash, &EmailTokenRecord{
		ContactID: "42",
		Address:   "user@example.com",
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}, time.Hour)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	for i := 0; i < 2; i++ {
		rec, err := store.Get(ctx, hash)
		if err != nil {
			t.Fatalf("Get #%d: %v", i, err)
		}
		if rec.ContactID != "42" || rec.Address != "user@example.com" {
			t.Fatalf("unexpected record: %+v", rec)
		}
	}

	if err := store.Delete(ctx, hash); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, hash); err != nil {
		t.Fatalf("second Delete should be a no-op, got %v", err)
	}
	if _, err := store.Get(ctx, hash); !errors.Is(err, ErrEmailTokenNotFound) {
		t.Fatalf("expected ErrEmailTokenNotFound, got %v", err)
	}
}

func TestEmailTokenStoreExpiredRecordIsNotFound(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewEmailTokenStore(rdb, "t")
	ctx := context.Background()
	hash := sha256.Sum256([]byte("token-2"))

	if err := store.Save(ctx, hash, &EmailTokenRecord{ContactID: "1", Address: "a@b.c", ExpiresAt: time.Now().Add(-time.Second).Unix()}, time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Get(ctx, hash); !errors.Is(err, ErrEmailTokenNotFound) {
		t.Fatalf("expected ErrEmailTokenNotFound, got %v", err)
	}
}

func TestEmailTokenStoreRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	store := NewEmailTokenStore(rdb, "t")
	mr.Close()

	_, err = store.Get(context.Background(), sha256.Sum256([]byte("x")))
	if !errors.Is(err, ErrEmailTokenRedisUnavailable) {
		t.Fatalf("expected ErrEmailTokenRedisUnavailable, got %v", err)
	}
}

func saveTestCode(t *testing.T, store *SMSCodeStore, phone, code string) {
	t.Helper()
	err := store.Save(context.Background(), &SMSCodeRecord{
		ContactID: "7",
		Phone:     phone,
		CodeHash:  sha256.Sum256([]byte(code)),
		ExpiresAt: time.Now().Add(10 * time.Minute).Unix(),
	}, 10*time.Minute)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func TestSMSCodeStoreMatchDoesNotConsume(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewSMSCodeStore(rdb, "")
	ctx := context.Background()
	saveTestCode(t, store, "+15551234567", "1234")

	for i := 0; i < 2; i++ {
		rec, err := store.Check(ctx, "+15551234567", sha256.Sum256([]byte("1234")), 3, true)
		if err != nil {
			t.Fatalf("Check #%d: %v", i, err)
		}
		if rec.ContactID != "7" || rec.Phone != "+15551234567" {
			t.Fatalf("unexpected record: %+v", rec)
		}
	}
}

func TestSMSCodeStoreOutOfTriesBeforeCompare(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewSMSCodeStore(rdb, "")
	ctx := context.Background()
	phone := "+15551234567"
	saveTestCode(t, store, phone, "1234")

	wrong := sha256.Sum256([]byte("0000"))
	for i := 0; i < 3; i++ {
		if _, err := store.Check(ctx, phone, wrong, 3, true); !errors.Is(err, ErrSMSCodeMismatch) {
			t.Fatalf("attempt %d: expected ErrSMSCodeMismatch, got %v", i+1, err)
		}
	}

	if _, err := store.Check(ctx, phone, sha256.Sum256([]byte("1234")), 3, true); !errors.Is(err, ErrSMSCodeOutOfTries) {
		t.Fatalf("fourth attempt: expected ErrSMSCodeOutOfTries, got %v", err)
	}
	if _, err := store.Check(ctx, phone, sha256.Sum256([]byte("1234")), 3, true); !errors.Is(err, ErrSMSCodeNotFound) {
		t.Fatalf("record should be cleaned after exhaustion, got %v", err)
	}
}

func TestSMSCodeStoreExhaustedWithoutClean(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewSMSCodeStore(rdb, "")
	ctx := context.Background()
	phone := "+15550000000"
	saveTestCode(t, store, phone, "9999")

	wrong := sha256.Sum256([]byte("1111"))
	if _, err := store.Check(ctx, phone, wrong, 1, false); !errors.Is(err, ErrSMSCodeMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := store.Check(ctx, phone, wrong, 1, false); !errors.Is(err, ErrSMSCodeOutOfTries) {
			t.Fatalf("expected out of tries, got %v", err)
		}
	}
}

func TestSMSCodeStoreSaveResetsAttempts(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewSMSCodeStore(rdb, "")
	ctx := context.Background()
	phone := "+15551112222"
	saveTestCode(t, store, phone, "1234")

	wrong := sha256.Sum256([]byte("0000"))
	for i := 0; i < 2; i++ {
		_, _ = store.Check(ctx, phone, wrong, 2, true)
	}
	saveTestCode(t, store, phone, "5678")

	if _, err := store.Check(ctx, phone, sha256.Sum256([]byte("5678")), 2, true); err != nil {
		t.Fatalf("fresh code should validate, got %v", err)
	}
}

func TestSMSCodeStoreDeleteIdempotent(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewSMSCodeStore(rdb, "")
	ctx := context.Background()
	saveTestCode(t, store, "+1555", "1234")

	for i := 0; i < 2; i++ {
		if err := store.Delete(ctx, "+1555"); err != nil {
			t.Fatalf("Delete #%d: %v", i, err)
		}
	}
	if _, err := store.Check(ctx, "+1555", sha256.Sum256([]byte("1234")), 0, false); !errors.Is(err, ErrSMSCodeNotFound) {
		t.Fatalf("expected ErrSMSCodeNotFound, got %v", err)
	}
}
