package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"findash/internal/cache"
	"findash/internal/config"
	"findash/internal/handlers/dashboard"
	"findash/internal/handlers/explorer"
	"findash/internal/handlers/insights"
	"findash/internal/handlers/sessions"
	"findash/internal/handlers/snapshot"
	apihttp "findash/internal/http"
	"findash/internal/logger"
	"findash/internal/services/dataloader"
	"findash/internal/services/metrics"
	"findash/internal/services/storage"
	"findash/internal/session"
	"findash/internal/version"
)

const cleanupInterval = time.Minute

var (
	cfg      *config.Config
	log      zerolog.Logger
	store    *session.Store
	memo     *cache.Memo
	cacheMgr *cache.Manager
)

func main() {
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get().String())
		return
	}

	// Load .env file for local development (ignore errors in production)
	_ = godotenv.Load()

	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := SetupDependencies(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	info := version.Get()
	log.Info().Str("version", info.Version).Str("addr", cfg.ListenAddr).Msg("starting findash")
	if warning := info.Check(); warning != "" {
		log.Warn().Msg(warning)
	}
	cacheMgr.StartCleanup(cleanupInterval)
	defer cacheMgr.Stop()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}

// SetupDependencies initializes the logger, session store, caches and
// handler packages from the configuration
func SetupDependencies(c *config.Config) error {
	cfg = c
	log = logger.New(c.LogLevel, c.Debug)

	vault, err := storage.NewVault(c.Passphrase)
	if err != nil {
		return fmt.Errorf("failed to open vault: %w", err)
	}

	store = session.NewStore(c.SessionTTL)
	memo = cache.NewMemo(c.CacheSize, c.CacheTTL)
	store.OnDrop(func(hash string) {
		if n := memo.InvalidateTable(hash); n > 0 {
			log.Debug().Str("hash", hash).Int("entries", n).Msg("cache invalidated")
		}
	})

	cacheMgr = cache.NewManager(logger.WithComponent(log, "cache"))
	cacheMgr.Register(memo)
	cacheMgr.Register(store)

	loader := dataloader.New(vault, logger.WithComponent(log, "dataloader"))

	sessions.Initialize(store, loader, memo, c.MaxUploadMB)
	dashboard.Initialize(metrics.New())
	insights.Initialize(c.Rules)
	snapshot.Initialize(c.Theme, vault, c.MaxUploadMB)

	return nil
}

// SetupRouter builds the HTTP handler with middleware and all routes
func SetupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(apihttp.Logger(log))
	r.Use(apihttp.Recovery(log))
	r.Use(middleware.Compress(5))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/health", http.StatusTemporaryRedirect)
	})

	sessions.RegisterRoutes(r)
	dashboard.RegisterRoutes(r)
	explorer.RegisterRoutes(r)
	insights.RegisterRoutes(r)
	snapshot.RegisterRoutes(r)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apihttp.WriteError(w, http.StatusNotFound, "Not found.")
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", snapshot.PassphraseHeader},
		ExposedHeaders:   []string{"Content-Disposition", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})
	return c.Handler(r)
}
