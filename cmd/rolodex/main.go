package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rolodexhq/rolodex/internal/cache"
	"github.com/rolodexhq/rolodex/internal/contact"
	"github.com/rolodexhq/rolodex/internal/httpapi"
	"github.com/rolodexhq/rolodex/internal/interactionlog"
	"github.com/rolodexhq/rolodex/internal/notion"
	"github.com/rolodexhq/rolodex/internal/templates"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	logger, err := buildLogger(os.Getenv("ROLODEX_LOG_LEVEL"))
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	addr := os.Getenv("ROLODEX_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	directory := notion.NewClient(notion.ClientOptions{
		APIKey:         os.Getenv("NOTION_API_KEY"),
		DatabaseID:     os.Getenv("NOTION_DATABASE_ID"),
		BaseURL:        os.Getenv("NOTION_BASE_URL"),
		MaxRetries:     intEnv("NOTION_MAX_RETRIES", 0),
		MaxConcurrency: intEnv("NOTION_MAX_CONCURRENCY", 0),
		PageSize:       intEnv("NOTION_PAGE_SIZE", 0),
		Logger:         logger.Named("notion"),
	})

	snapshots := cache.New(cache.Options{
		Directory: directory,
		TTL:       durationEnv("ROLODEX_CACHE_TTL", 0),
		Logger:    logger.Named("cache"),
	})

	var interactions contact.InteractionLog
	if dsn := strings.TrimSpace(os.Getenv("ROLODEX_LOG_DSN")); dsn != "" {
		store, err := interactionlog.NewPostgresStore(dsn)
		if err != nil {
			logger.Fatal("failed to initialize interaction log", zap.Error(err))
		}
		defer func() { _ = store.Close() }()
		interactions = store
	} else {
		logger.Info("ROLODEX_LOG_DSN not set, interaction history disabled")
	}

	var library *templates.Library
	if dir := strings.TrimSpace(os.Getenv("ROLODEX_TEMPLATE_DIR")); dir != "" {
		library, err = templates.NewLibrary(dir, logger.Named("templates"))
		if err != nil {
			logger.Fatal("failed to load template library",
				zap.String("dir", dir),
				zap.Error(err))
		}
		if err := library.Watch(); err != nil {
			logger.Warn("template hot reload disabled", zap.Error(err))
		}
		defer func() { _ = library.Close() }()
	}

	hub := httpapi.NewHub(logger.Named("watch"))
	svc := contact.NewService(contact.ServiceOptions{
		Directory: directory,
		Source:    snapshots,
		Log:       interactions,
		Notifier:  hub,
		Logger:    logger.Named("service"),
	})

	server, err := httpapi.NewServerWithConfig(svc, library, hub, logger.Named("http"), httpapi.ServerConfig{
		RateLimitMax:    intEnv("ROLODEX_RATE_LIMIT_MAX", 0),
		RateLimitWindow: durationEnv("ROLODEX_RATE_LIMIT_WINDOW", time.Minute),
		MaxBodyBytes:    int64Env("ROLODEX_MAX_BODY_BYTES", 0),
		WriteTimeout:    durationEnv("ROLODEX_WRITE_TIMEOUT", 0),
	})
	if err != nil {
		logger.Fatal("failed to initialize server", zap.Error(err))
	}

	logger.Info("rolodex listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, server); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if level != "" {
		parsed, err := zap.ParseAtomicLevel(strings.ToLower(strings.TrimSpace(level)))
		if err != nil {
			return nil, err
		}
		cfg.Level = parsed
	}
	return cfg.Build()
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
