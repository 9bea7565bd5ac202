package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	api "github.com/mind-engage/mindengage-testprep/internal/api/http"
	auth "github.com/mind-engage/mindengage-testprep/internal/auth/middleware"
	"github.com/mind-engage/mindengage-testprep/internal/catalog"
	"github.com/mind-engage/mindengage-testprep/internal/config"
	"github.com/mind-engage/mindengage-testprep/internal/db"
	"github.com/mind-engage/mindengage-testprep/internal/exam"
	"github.com/mind-engage/mindengage-testprep/internal/lockx"
	"github.com/mind-engage/mindengage-testprep/internal/logging"
	"github.com/mind-engage/mindengage-testprep/internal/metrics"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer dbh.Close()

	cat := catalog.NewSQLStore(dbh, db.Driver(cfg.DBDriver))
	if cfg.SeedFile != "" {
		seed, err := catalog.ReadSeedFile(cfg.SeedFile)
		if err != nil {
			logger.Fatal("read seed", zap.Error(err))
		}
		if err := cat.ApplySeed(openCtx, seed); err != nil {
			logger.Fatal("apply seed", zap.Error(err))
		}
		logger.Info("catalog seeded", zap.String("file", cfg.SeedFile),
			zap.Int("exams", len(seed.Exams)), zap.Int("questions", len(seed.Questions)),
			zap.Int("templates", len(seed.Templates)))
	}

	// --- Attempt engine ---
	opts := []exam.ServiceOption{
		exam.WithLogger(logger.Named("exam")),
		exam.WithCatalogTimeout(cfg.CatalogTimeout),
	}
	if cfg.LockDriver == "redis" {
		rdb, err := lockx.NewClient(openCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		opts = append(opts, exam.WithLocker(lockx.NewRedisLocker(rdb, lockx.Options{
			TTL:    cfg.LockTTL,
			Logger: logger.Named("lock"),
		})))
	}
	svc := exam.NewService(exam.NewSQLStore(dbh, db.Driver(cfg.DBDriver)), cat, opts...)

	// --- Auth (local JWT for offline/dev) ---
	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logging.RequestLogger(logger), middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Local login (enabled in offline mode by default; can be enabled online via env)
	if cfg.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(authSvc, auth.LocalLogin{
			AdminUser:     cfg.AdminUser,
			AdminPassHash: cfg.AdminPassHash,
		}))
	}

	// Protected API (JWT → subject and role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		api.MountAttempts(pr, svc)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
	})
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr),
			zap.String("mode", string(cfg.Mode)), zap.String("db", cfg.DBDriver),
			zap.String("lock", cfg.LockDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
}
