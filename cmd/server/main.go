package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"facecards/internal/account"
	"facecards/internal/api"
	"facecards/internal/api/middleware"
	"facecards/internal/auth"
	"facecards/internal/config"
	"facecards/internal/database"
	"facecards/internal/events"
	"facecards/internal/logger"
	"facecards/internal/metrics"
	"facecards/internal/telegram"
	"facecards/internal/user"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	readTimeout       = 15 * time.Second
	writeTimeout      = 15 * time.Second
	serverIdleTimeout = 60 * time.Second
	shutdownTimeout   = 10 * time.Second
	eventSource       = "facecards-auth"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Error loading .env file:", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog := logger.New(cfg.LogLevel, cfg.Env)
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("Server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	if cfg.IsProduction() && !cfg.Session.SecureCookie {
		zlog.Warn("SESSION_SECURE_COOKIE is off in production; session cookies will be sent over plain HTTP")
	}

	store, closeStore, err := setupStore(ctx, cfg, zlog)
	if err != nil {
		return err
	}
	defer closeStore()

	locker, closeLocker, err := setupLocker(ctx, cfg, zlog)
	if err != nil {
		return err
	}
	defer closeLocker()

	listeners, closeListeners, err := setupListeners(cfg, zlog)
	if err != nil {
		return err
	}
	defer closeListeners()

	verifier := auth.NewTelegramVerifier(cfg.Telegram.BotToken,
		auth.WithMaxAge(cfg.Telegram.AuthMaxAge),
		auth.WithRequireAuthDate(cfg.Telegram.RequireAuthDate),
		auth.WithVerifierLogger(logger.WithComponent(zlog, "initdata")),
		auth.WithVerifierMetrics(m),
	)
	sessions := auth.NewSessionIssuer(cfg.Session.Secret, cfg.Session.TTL, cfg.Session.Issuer)
	coordinator := account.NewCoordinator(store,
		account.WithLocker(locker),
		account.WithLogger(logger.WithComponent(zlog, "account")),
		account.WithMetrics(m),
		account.WithListeners(listeners...),
	)

	handler := user.NewHandler(user.Options{
		Verifier:     verifier,
		Sessions:     sessions,
		Accounts:     coordinator,
		Store:        store,
		SecureCookie: cfg.Session.SecureCookie,
		Logger:       logger.WithComponent(zlog, "http"),
		Metrics:      m,
	})

	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(zlog), middleware.Metrics(m))
	user.RegisterHandlers(r, handler)
	api.RegisterDocsHandlers(r, zlog)
	r.Handle("/metrics", m.Handler()).Methods("GET")

	protect, err := middleware.CSRF(cfg.CSRF, logger.WithComponent(zlog, "csrf"), user.PayloadAuthPaths...)
	if err != nil {
		return err
	}
	root := middleware.CORS(cfg.CORS.AllowedOrigin)(protect(r))

	return startServer(ctx, cfg.Addr(), root, zlog)
}

func setupStore(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (account.Store, func(), error) {
	if cfg.Database.ConnectionString == "" {
		zlog.Warn("DB_CONNECTION_STRING not set; accounts are kept in memory")
		return account.NewMemoryStore(), func() {}, nil
	}

	db, err := database.Connect(ctx, cfg.Database.ConnectionString)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.RunMigrations {
		if err := database.Migrate(db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		zlog.Info("Database migrations applied")
	}

	return account.NewPostgresStore(db), func() {
		if err := db.Close(); err != nil {
			zlog.Warn("Failed to close database connection", zap.Error(err))
		}
	}, nil
}

func setupLocker(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (account.Locker, func(), error) {
	if cfg.Redis.URL == "" {
		return account.NewLocalLocker(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	zlog.Info("Using Redis for account upsert locks", zap.String("addr", opts.Addr))

	return account.NewRedisLocker(client, cfg.Redis.LockTTL, logger.WithComponent(zlog, "lock")), func() {
		if err := client.Close(); err != nil {
			zlog.Warn("Failed to close Redis client", zap.Error(err))
		}
	}, nil
}

func setupListeners(cfg *config.Config, zlog *zap.Logger) ([]account.Listener, func(), error) {
	var (
		listeners []account.Listener
		closers   []func()
	)

	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, eventSource,
			logger.WithComponent(zlog, "events"))
		listeners = append(listeners, publisher)
		closers = append(closers, func() {
			if err := publisher.Close(); err != nil {
				zlog.Warn("Failed to close Kafka writer", zap.Error(err))
			}
		})
	}

	if cfg.Telegram.NotifyNewAccounts && len(cfg.Telegram.AdminIDs) > 0 {
		tgLog := logger.WithComponent(zlog, "telegram")
		templates, err := telegram.LoadTemplates(cfg.Telegram.TemplatesDir, tgLog)
		if err != nil {
			return nil, nil, err
		}
		notifier := telegram.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.APIBaseURL,
			cfg.Telegram.AdminIDs, templates, tgLog)
		listeners = append(listeners, notifier)
		closers = append(closers, notifier.Wait)
	}

	return listeners, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

func startServer(ctx context.Context, addr string, handler http.Handler, zlog *zap.Logger) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("Starting server", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zlog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
