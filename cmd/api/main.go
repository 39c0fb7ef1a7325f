package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/petermazzocco/dsgnr/internal/auth"
	"github.com/petermazzocco/dsgnr/internal/config"
	"github.com/petermazzocco/dsgnr/internal/database"
	"github.com/petermazzocco/dsgnr/internal/handlers"
	"github.com/petermazzocco/dsgnr/internal/imaging"
	"github.com/petermazzocco/dsgnr/internal/logging"
	"github.com/petermazzocco/dsgnr/internal/posts"
	"github.com/petermazzocco/dsgnr/internal/storage"
)

func main() {
	if err := run(); err != nil {
		logging.New(os.Stderr, "error").Error(context.Background(), "startup failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(os.Stdout, cfg.LogLevel)
	ctx := context.Background()

	if cfg.UsesDevSecret() {
		log.Warn(ctx, "SECRET_KEY is the development default; set it before deploying")
	}

	// Database connection
	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer database.Close(db)
	if err := database.Migrate(db); err != nil {
		return err
	}

	users := auth.NewService(db, log)
	if _, err := users.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
		return err
	}

	// Content store
	var store storage.Store
	switch cfg.Storage.Backend {
	case config.StorageR2:
		store, err = storage.NewR2(ctx, cfg.Storage.AccountID, cfg.Storage.AccessKeyID, cfg.Storage.AccessKeySecret, cfg.Storage.Bucket)
	default:
		store, err = storage.NewDisk(cfg.Storage.ContentDir)
	}
	if err != nil {
		return err
	}
	log.Info(ctx, "content store ready", "backend", cfg.Storage.Backend)

	// Session store
	sessionStore, err := auth.NewStore(auth.StoreOptions{
		Backend: cfg.SessionStore,
		Dir:     cfg.SessionDir,
		Secret:  cfg.SecretKey,
		MaxAge:  cfg.SessionMaxAge,
		Secure:  cfg.SecureCookies,
	})
	if err != nil {
		return err
	}
	sessions := auth.NewSessionManager(sessionStore, cfg.SessionMaxAge)

	// OAUTH
	if cfg.OAuthEnabled() {
		auth.SetupOAuth(sessionStore, cfg.OAuth.GoogleKey, cfg.OAuth.GoogleSecret, cfg.OAuth.CallbackBase)
		log.Info(ctx, "google sign-in enabled")
	}

	h, err := handlers.New(users, posts.NewService(db, store, imaging.NewDetector(), log), sessions, log, handlers.Options{
		Location:           cfg.Location(),
		PublicFeed:         cfg.PublicFeed(),
		MaxUploadBytes:     cfg.MaxUploadBytes,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		OAuth:              cfg.OAuthEnabled(),
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errs := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting server", "addr", cfg.Addr, "feed", cfg.Feed.Visibility)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		return err
	case <-done:
	}
	log.Info(ctx, "shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info(ctx, "server stopped")
	return nil
}
