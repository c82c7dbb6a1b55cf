package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tavernlink/internal/access"
	"github.com/tavernlink/internal/auth"
	"github.com/tavernlink/internal/config"
	"github.com/tavernlink/internal/fileserver"
	"github.com/tavernlink/internal/handler"
	"github.com/tavernlink/internal/logger"
	"github.com/tavernlink/internal/metrics"
	"github.com/tavernlink/internal/model"
	"github.com/tavernlink/internal/narrator"
	"github.com/tavernlink/internal/presence"
	"github.com/tavernlink/internal/repository"
	"github.com/tavernlink/internal/settings"
	"github.com/tavernlink/internal/startup"
	"github.com/tavernlink/internal/storage"
	"github.com/tavernlink/internal/storage/memory"
	"github.com/tavernlink/internal/store"
	"github.com/tavernlink/internal/ws"
	"github.com/tavernlink/migrations"
)

const hubStopTimeout = 15 * time.Second

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	inMemory := flag.Bool("memory", false, "keep all state in process memory (no database)")
	flag.Parse()

	cfg := config.Load()
	if *inMemory {
		cfg.StorageBackend = config.BackendMemory
	}
	logger.SetLevel(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Errorf("config: %v", err)
		exit(1)
	}
	if err := run(cfg, *dev, *migrate); err != nil {
		logger.Errorf("api: %v", err)
		exit(1)
	}
	exit(0)
}

// exit дописывает очередь логов перед выходом.
func exit(code int) {
	if !logger.Sync(2 * time.Second) {
		fmt.Fprintln(os.Stderr, "logger: flush timed out")
	}
	if n := logger.Dropped(); n > 0 {
		fmt.Fprintf(os.Stderr, "logger: %d records dropped\n", n)
	}
	os.Exit(code)
}

func run(cfg *config.Config, dev, migrateOnly bool) error {
	logger.Info("starting tavern API")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var backend store.Backend
	if cfg.StorageBackend == config.BackendMemory {
		logger.Info("storage: in-memory backend, state is lost on restart")
		backend = memory.NewBackend().Repositories()
	} else {
		if dev {
			db, err := startEmbeddedPostgres(cfg)
			if err != nil {
				return fmt.Errorf("embedded postgres: %w", err)
			}
			defer func() {
				logger.Info("stopping embedded postgres...")
				if err := db.Stop(); err != nil {
					logger.Errorf("embedded postgres stop: %v", err)
				}
			}()
		}
		poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
		if err != nil {
			return fmt.Errorf("parse db config: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.DBMaxConnections())
		poolCfg.MinConns = 2
		pool, err := startup.ConnectDBWithRetry(ctx, poolCfg, 60*time.Second)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := startup.Migrate(ctx, pool, migrations.Files); err != nil {
			return err
		}
		if migrateOnly {
			return nil
		}
		backend = repository.NewBackend(pool)
	}

	var attempts storage.AttemptStore
	if cfg.RedisURL != "" {
		rc, err := startup.ConnectRedisWithRetry(ctx, cfg.RedisURL, 30*time.Second)
		if err != nil {
			return err
		}
		attempts = rc
	} else {
		logger.Info("attempt store: in-memory (REDIS_URL not set)")
		attempts = memory.New()
	}
	defer attempts.Close()

	sets, err := settings.Load(ctx, backend.Settings, cfg.DefaultUploadLimitMB)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}
	// Сборка по кругу: хранилище публикует в хаб, хаб подписывает через хранилище,
	// трекер presence публикует в хаб.
	dir := access.NewDirectory()
	tracker := presence.NewTracker(dir, nil)
	hub := ws.NewHub(ws.Config{
		MaxConns:       cfg.MaxWSConnections,
		SendBuffer:     cfg.WSSendBufferSize,
		WriteTimeout:   cfg.WSWriteTimeout,
		PongTimeout:    cfg.WSPongTimeout,
		MaxMessageSize: cfg.WSMaxMessageSize,
		InboundRate:    cfg.WSInboundRate,
		InboundBurst:   cfg.WSInboundBurst,
	}, dir, nil, tracker, m)
	tracker.SetPublisher(hub)
	files := fileserver.New(cfg.UploadDir)
	st := store.New(backend, dir, hub, store.Options{
		HistoryLimit:    cfg.HistoryLimit,
		StrictEnvelopes: cfg.StrictEnvelopes,
		Blobs:           files,
	})
	hub.SetSubscriber(st)

	if err := seedAdmin(ctx, st, cfg); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if err := st.LoadDirectory(ctx); err != nil {
		return fmt.Errorf("load directory: %w", err)
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL, attempts)
	authSvc := auth.NewService(st, attempts, tokens)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(hubCtx)
	}()

	srv := &http.Server{
		Addr: cfg.ServerAddr,
		Handler: handler.NewRouter(handler.Deps{
			Store:            st,
			Auth:             authSvc,
			Hub:              hub,
			Tracker:          tracker,
			Settings:         sets,
			Files:            files,
			Narrator:         narrator.New(cfg.NarratorTimeout),
			Metrics:          m,
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			RateLimitPerIP:   cfg.RateLimitPerIP,
			RateLimitPerUser: cfg.RateLimitPerUser,
			AccessLog:        !cfg.Production,
		}),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	// Хаб закрывает подключения и сбрасывает индексы; эфемерное состояние не сохраняется.
	hubCancel()
	select {
	case <-hubDone:
		logger.Info("hub stopped")
	case <-time.After(hubStopTimeout):
		logger.Errorf("hub did not stop within %s, exiting anyway", hubStopTimeout)
	}
	return serveErr
}

// seedAdmin на пустой базе создаёт администратора и стартовое сообщество. Без ADMIN_PASSWORD
// пароль генерируется и печатается в лог один раз.
func seedAdmin(ctx context.Context, st *store.Store, cfg *config.Config) error {
	password := cfg.AdminPassword
	generated := password == ""
	if generated {
		key, err := auth.NewRecoveryKey()
		if err != nil {
			return err
		}
		password = key
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	admin := &model.User{Username: cfg.AdminUsername, DisplayName: "Dungeon Master", PasswordHash: hash}
	if err := st.Seed(ctx, admin); err != nil {
		return err
	}
	if generated && admin.ID != "" {
		logger.Infof("seed: admin %q created with password %s (change it after first login)", admin.Username, password)
	}
	return nil
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5433
		user     = "tavern"
		password = "tavern_secret"
		database = "tavern"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "tavern-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
