// Command recoveryd serves the password recovery flow over HTTP.
//
// Configuration comes from an optional YAML file (-config), then
// GORECOVERY_* environment variables; a .env file in the working directory
// is loaded first when present. Service wiring uses:
//
//	RECOVERYD_ADDR          listen address (default :8080)
//	RECOVERYD_REDIS_URL     redis URL (default redis://localhost:6379/0)
//	RECOVERYD_DATABASE_URL  postgres DSN for the contacts table
//	RECOVERYD_CORS_ORIGINS  comma separated allowed origins
//
// With -dev an embedded Postgres and an in-memory Redis are started, a demo
// contact is seeded and messages are printed to the log instead of sent.
//
// With -otel set to an interval, the engine metrics are also collected by an
// OpenTelemetry MeterProvider and written to the log on that interval.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	goRecovery "github.com/MrEthical07/goRecovery"
	"github.com/MrEthical07/goRecovery/channel"
	"github.com/MrEthical07/goRecovery/contactstore/postgres"
	"github.com/MrEthical07/goRecovery/httpapi"
	otelexp "github.com/MrEthical07/goRecovery/metrics/export/otel"
	"github.com/MrEthical07/goRecovery/password"
)

const (
	devPGPort     = 54329
	devPGUser     = "recovery"
	devPGPassword = "recovery_secret"
	devPGDatabase = "recovery"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	dev := flag.Bool("dev", false, "embedded Postgres, in-memory Redis and logged messages")
	migrateOnly := flag.Bool("migrate", false, "apply contact schema migrations and exit")
	otelInterval := flag.Duration("otel", 0, "log OpenTelemetry metrics on this interval (0 disables)")
	flag.Parse()

	logger := log.New(os.Stderr, "recoveryd: ", log.LstdFlags)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Printf("load .env: %v", err)
	}

	if err := run(logger, *configPath, *dev, *migrateOnly, *otelInterval); err != nil {
		logger.Fatal(err)
	}
}

func run(logger *log.Logger, configPath string, dev, migrateOnly bool, otelInterval time.Duration) error {
	cfg, err := goRecovery.LoadConfig(configPath)
	if err != nil {
		return err
	}

	addr := envOr("RECOVERYD_ADDR", ":8080")
	databaseURL := os.Getenv("RECOVERYD_DATABASE_URL")
	redisURL := envOr("RECOVERYD_REDIS_URL", "redis://localhost:6379/0")

	// -------- DEV INFRASTRUCTURE --------
	if dev {
		pg, dsn, err := startEmbeddedPostgres(logger)
		if err != nil {
			return fmt.Errorf("embedded postgres: %w", err)
		}
		defer func() {
			logger.Print("stopping embedded postgres")
			if err := pg.Stop(); err != nil {
				logger.Printf("embedded postgres stop: %v", err)
			}
		}()
		databaseURL = dsn

		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("miniredis: %w", err)
		}
		defer mr.Close()
		redisURL = "redis://" + mr.Addr()

		devSite(&cfg, addr)
	}

	lint := cfg.Lint()
	for _, w := range lint {
		logger.Printf("config %s %s: %s", w.Severity, w.Code, w.Message)
	}
	if !dev {
		if err := lint.AsError(goRecovery.LintHigh); err != nil {
			return err
		}
	}

	if databaseURL == "" {
		return errors.New("RECOVERYD_DATABASE_URL is required (or run with -dev)")
	}

	// -------- CONTACTS --------
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	pool, err := postgres.Open(ctx, databaseURL, 10)
	if err != nil {
		cancel()
		return fmt.Errorf("open contacts db: %w", err)
	}
	defer pool.Close()

	err = postgres.Migrate(ctx, pool)
	cancel()
	if err != nil {
		return fmt.Errorf("migrate contacts db: %w", err)
	}
	logger.Print("contacts schema up to date")
	if migrateOnly {
		return nil
	}

	contacts := postgres.New(pool)
	if dev {
		if err := seedDevContact(contacts, cfg.Password); err != nil {
			return err
		}
	}

	// -------- REDIS --------
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	// -------- ENGINE --------
	builder := goRecovery.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithContactProvider(contacts).
		WithLogger(logger).
		WithAuditSink(goRecovery.NewJSONWriterSink(os.Stdout))
	if dev {
		transport := channel.NewDevTransport(logger)
		builder = builder.WithMailer(transport).WithSMSSender(transport)
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	if otelInterval > 0 {
		stop, err := startOTel(logger, engine, otelInterval)
		if err != nil {
			return err
		}
		defer stop()
	}

	report := engine.SecurityReport()
	logger.Printf("recovery: auth_type=%s channels=%s cooldown=%s throttle=%t captcha=%t tokens=%t",
		report.AuthType, strings.Join(report.Channels, ","), report.Cooldown,
		report.ThrottleActive, report.CaptchaRequired, report.AccessTokensEnabled)

	// -------- HTTP --------
	router := httpapi.NewRouter(engine, httpapi.Options{
		SessionTTL:     cfg.Session.TTL,
		SecureCookie:   !dev,
		AllowedOrigins: splitList(os.Getenv("RECOVERYD_CORS_ORIGINS")),
		ExposeMetrics:  cfg.Metrics.Enabled,
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Printf("received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Print("server stopped")
	return nil
}

// startOTel registers the engine on a MeterProvider whose periodic reader
// logs every non-zero datapoint.
func startOTel(logger *log.Logger, engine *goRecovery.Engine, interval time.Duration) (func(), error) {
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(
		sdkmetric.NewPeriodicReader(otelexp.NewLogExporter(logger), sdkmetric.WithInterval(interval)),
	))
	exp, err := otelexp.NewOTelExporter(provider.Meter("github.com/MrEthical07/goRecovery"), engine)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, fmt.Errorf("otel exporter: %w", err)
	}
	logger.Printf("otel metrics every %s", interval)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Printf("otel shutdown: %v", err)
		}
		if err := exp.Close(); err != nil {
			logger.Printf("otel exporter close: %v", err)
		}
	}, nil
}

func startEmbeddedPostgres(logger *log.Logger) (*embeddedpostgres.EmbeddedPostgres, string, error) {
	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(devPGPort).
			Username(devPGUser).
			Password(devPGPassword).
			Database(devPGDatabase).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "recoveryd-pg-runtime")),
	)

	logger.Print("starting embedded postgres")
	if err := db.Start(); err != nil {
		return nil, "", fmt.Errorf("start: %w", err)
	}

	dsn := fmt.Sprintf("postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		devPGUser, devPGPassword, devPGPort, devPGDatabase)
	logger.Printf("embedded postgres running on port %d", devPGPort)
	return db, dsn, nil
}

// devSite makes relative site URLs absolute against the local listener.
func devSite(cfg *goRecovery.Config, addr string) {
	host := addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	base := "http://" + host
	for _, u := range []*string{&cfg.Site.URL, &cfg.Site.LoginURL, &cfg.Site.SetPasswordURL, &cfg.Site.HomeURL} {
		if strings.HasPrefix(*u, "/") {
			*u = base + *u
		}
	}
	cfg.Env = "dev"
}

// seedDevContact stores a demo contact with the password "demo-password",
// so both the email and the SMS path can be tried locally.
func seedDevContact(store *postgres.Store, pc goRecovery.PasswordConfig) error {
	hasher, err := password.NewArgon2(password.Config{
		Memory:      pc.Memory,
		Time:        pc.Time,
		Parallelism: pc.Parallelism,
		SaltLength:  pc.SaltLength,
		KeyLength:   pc.KeyLength,
	})
	if err != nil {
		return fmt.Errorf("seed demo contact: %w", err)
	}
	hash, err := hasher.Hash("demo-password")
	if err != nil {
		return fmt.Errorf("seed demo contact: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = store.Upsert(ctx, goRecovery.Contact{
		ID:           "demo",
		Name:         "Demo User",
		Email:        "demo@example.com",
		Phone:        "+15550000000",
		Locale:       "en_US",
		PasswordHash: hash,
		IsUser:       true,
	})
	if err != nil {
		return fmt.Errorf("seed demo contact: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
