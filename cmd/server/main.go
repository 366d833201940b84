package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/holocron/internal/auth"
	"github.com/mmynk/holocron/internal/bookinfo"
	"github.com/mmynk/holocron/internal/metrics"
	"github.com/mmynk/holocron/internal/service"
	"github.com/mmynk/holocron/internal/storage/sqlite"
	"github.com/mmynk/holocron/pkg/logging"
)

const devSecret = "holocron-dev-secret"

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	logging.Setup()

	// Get settings from env or use defaults
	dbPath := getEnv("DB_PATH", "./data/holocron.db")
	port := getEnv("PORT", "8080")
	jwtSecret := getEnv("JWT_SECRET", devSecret)
	tokenTTL, err := time.ParseDuration(getEnv("TOKEN_TTL", "24h"))
	if err != nil {
		slog.Error("Invalid TOKEN_TTL", "error", err)
		os.Exit(1)
	}
	if jwtSecret == devSecret {
		slog.Warn("JWT_SECRET not set, using the development secret")
	}

	// Initialize SQLite storage
	store, err := sqlite.New(dbPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", dbPath)

	logger := slog.Default()
	jwtManager := auth.NewJWTManager(jwtSecret, tokenTTL)
	m := metrics.New()

	// Google Books first, openBD for Japanese titles it lacks
	lookupClient := &http.Client{Timeout: 10 * time.Second}
	info := bookinfo.NewChain(logger,
		bookinfo.NewGoogleBooks(getEnv("GOOGLE_BOOKS_API_URL", bookinfo.DefaultGoogleBooksURL), lookupClient),
		bookinfo.NewOpenBD(getEnv("OPENBD_API_URL", bookinfo.DefaultOpenBDURL), lookupClient),
	)

	lib := service.NewLibraryService(store, store, info, m, logger)
	authSvc := service.NewAuthService(auth.NewPasswordAuthenticator(store), jwtManager, logger)
	handler := service.NewHandler(lib, authSvc, jwtManager, m, logger)

	// h2c lets HTTP/2 clients talk to the server without TLS
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Server starting", "address", srv.Addr, "url", fmt.Sprintf("http://localhost:%s", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown failed", "error", err)
	}
}
