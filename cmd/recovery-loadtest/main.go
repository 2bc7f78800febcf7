package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goRecovery "github.com/MrEthical07/goRecovery"
)

func main() {
	var (
		contacts    = flag.Int("contacts", 10000, "number of contacts to seed")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (send + confirm)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *contacts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "contacts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := goRecovery.DefaultConfig()
	cfg.Site.URL = "https://loadtest.local/"
	cfg.Site.Name = "loadtest"
	cfg.Site.SetPasswordURL = "https://loadtest.local/forgotpassword/set/"
	cfg.Recovery.Channels = []string{"sms"}
	cfg.Recovery.Timeout = 0

	codes := &codeSink{codes: make(map[string]string, *contacts)}
	engine, err := goRecovery.New().
		WithConfig(cfg).
		WithRedis(client).
		WithContactProvider(newSeededContacts(*contacts)).
		WithSMSSender(codes).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	sendStats := runPhase(*ops, *concurrency, *contacts, func(i int) error {
		_, err := engine.Handle(ctx, goRecovery.Request{
			SessionID: sessionFor(i),
			Post:      true,
			Params:    url.Values{"login": {phoneFor(i)}},
		})
		return err
	})
	confirmStats := runPhase(*ops, *concurrency, *contacts, func(i int) error {
		code, ok := codes.code(phoneFor(i))
		if !ok {
			return fmt.Errorf("no code for %d", i)
		}
		out, err := engine.Handle(ctx, goRecovery.Request{
			SessionID: sessionFor(i),
			Post:      true,
			Params:    url.Values{"login": {phoneFor(i)}, "confirmation_code": {code}},
		})
		if err != nil {
			return err
		}
		if !out.CodeConfirmed {
			return fmt.Errorf("code rejected for %d", i)
		}
		return nil
	})

	fmt.Println("---- results ----")
	printStats("send", sendStats)
	printStats("confirm", confirmStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("sent=%d rate_limited=%d code_invalid=%d\n",
		snap.Counters[goRecovery.MetricRecoverySent],
		snap.Counters[goRecovery.MetricRateLimited],
		snap.Counters[goRecovery.MetricCodeInvalid],
	)
}

func runPhase(ops, concurrency, contacts int, op func(i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := i % contacts
				t0 := time.Now()
				err := op(idx)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func sessionFor(i int) string { return fmt.Sprintf("lt-%d", i) }

func phoneFor(i int) string { return fmt.Sprintf("+1555%07d", i) }

// codeSink keeps the last code texted to each phone.
type codeSink struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *codeSink) SendSMS(_ context.Context, phone, text string) error {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return fmt.Errorf("empty sms")
	}
	c.mu.Lock()
	c.codes[phone] = fields[len(fields)-1]
	c.mu.Unlock()
	return nil
}

func (c *codeSink) code(phone string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	code, ok := c.codes[phone]
	return code, ok
}

type seededContacts struct {
	byPhone map[string]goRecovery.Contact
	byID    map[string]goRecovery.Contact
}

func newSeededContacts(n int) *seededContacts {
	s := &seededContacts{
		byPhone: make(map[string]goRecovery.Contact, n),
		byID:    make(map[string]goRecovery.Contact, n),
	}
	for i := 0; i < n; i++ {
		c := goRecovery.Contact{
			ID:           fmt.Sprintf("c%d", i),
			Phone:        phoneFor(i),
			Email:        fmt.Sprintf("user%d@loadtest.local", i),
			PasswordHash: "$argon2id$loadtest",
			IsUser:       true,
		}
		s.byPhone[c.Phone] = c
		s.byID[c.ID] = c
	}
	return s
}

func (s *seededContacts) GetContactByLogin(_ context.Context, login string, _ goRecovery.LoginType) (goRecovery.Contact, bool, error) {
	c, ok := s.byPhone[login]
	return c, ok, nil
}

func (s *seededContacts) GetContactByID(_ context.Context, id string) (goRecovery.Contact, bool, error) {
	c, ok := s.byID[id]
	return c, ok, nil
}

func (s *seededContacts) GetContactWithPasswordByPhone(_ context.Context, phone string) (goRecovery.Contact, bool, error) {
	c, ok := s.byPhone[phone]
	return c, ok && c.PasswordHash != "", nil
}

func (s *seededContacts) HasEmail(_ context.Context, id, email string) (bool, error) {
	return s.byID[id].Email == email, nil
}

func (s *seededContacts) UpdatePasswordHash(context.Context, string, string) error {
	return nil
}
