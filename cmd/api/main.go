package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voice-relay/internal/audit"
	"voice-relay/internal/auth"
	"voice-relay/internal/calls"
	"voice-relay/internal/config"
	"voice-relay/internal/httpapi"
	"voice-relay/internal/relay"
	"voice-relay/internal/reporting"
	"voice-relay/internal/retell"
	"voice-relay/internal/webhooks"
	"voice-relay/pkg/logger"
	"voice-relay/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	client, err := retell.NewClient(cfg.Retell, log)
	if err != nil {
		log.Error("retell client init failed", "err", err)
		os.Exit(1)
	}
	if cfg.Retell.WebhookVerifyKey == "" {
		log.Warn("RETELL_WEBHOOK_VERIFY_KEY not set; signed webhooks will be rejected")
	}
	if cfg.Retell.AllowUnsigned {
		log.Warn("unsigned webhooks are accepted (RETELL_WEBHOOK_ALLOW_UNSIGNED)")
	}

	store := calls.NewMemoryStore()

	journalRepo, db, err := openJournal(rootCtx, cfg, log)
	if err != nil {
		log.Error("journal init failed", "err", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}
	journal := audit.NewService(journalRepo)

	opts := relay.Options{Log: log}
	if cfg.CallCapEnabled() {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer closeRedis(rdb, log)

		callCap, err := utils.NewCallCap(rdb, "", cfg.Redis.OutboundCallLimit, 2*cfg.Retell.Timeout)
		if err != nil {
			log.Error("call cap init failed", "err", err)
			os.Exit(1)
		}
		opts.CallCap = callCap
		log.Info("outbound call cap enabled", "limit", cfg.Redis.OutboundCallLimit)
	}

	var authMW gin.HandlerFunc
	if cfg.AuthEnabled() {
		authManager, err := auth.NewManager(cfg.Auth)
		if err != nil {
			log.Error("auth init failed", "err", err)
			os.Exit(1)
		}
		authMW = auth.RequireAccessToken(authManager)
	} else {
		log.Warn("AUTH_JWT_SECRET not set; calls API is unauthenticated")
	}

	h := httpapi.Handlers{
		Relay:         relay.NewService(client, store, opts),
		Webhooks:      webhooks.NewDispatcher(store, journal, log),
		Journal:       journal,
		Reporting:     reporting.NewService(store),
		Verifier:      client,
		AllowUnsigned: cfg.Retell.AllowUnsigned,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, h, authMW)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// create-call may wait out the full provider timeout
		WriteTimeout: cfg.Retell.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "journal", journalKind(db))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// openJournal picks the Postgres journal when a database is configured and
// the in-memory one otherwise. db is nil for the in-memory journal.
func openJournal(ctx context.Context, cfg config.Config, log *slog.Logger) (audit.Repository, *sql.DB, error) {
	if !cfg.JournalEnabled() {
		return audit.NewMemoryRepo(), nil, nil
	}
	db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxOpenConns: cfg.DB.MaxOpenConns})
	if err != nil {
		return nil, nil, err
	}
	repo := audit.NewPostgresRepo(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	log.Info("postgres webhook journal enabled", "host", cfg.DB.Host, "db", cfg.DB.Name)
	return repo, db, nil
}

func journalKind(db *sql.DB) string {
	if db == nil {
		return "memory"
	}
	return "postgres"
}

func closeRedis(rdb *redis.Client, log *slog.Logger) {
	if err := rdb.Close(); err != nil {
		log.Error("redis close failed", "err", err)
	}
}
