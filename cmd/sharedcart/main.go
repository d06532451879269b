package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sharedcart/sharedcart/internal/backup"
	"github.com/sharedcart/sharedcart/internal/database"
	"github.com/sharedcart/sharedcart/internal/email"
	"github.com/sharedcart/sharedcart/internal/logging"
	"github.com/sharedcart/sharedcart/internal/server"
)

func main() {
	logger := logging.Setup(os.Getenv("SHAREDCART_LOG_LEVEL"))

	port := os.Getenv("SHAREDCART_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("SHAREDCART_DB_PATH")
	if dbPath == "" {
		dbPath = "sharedcart.db"
	}

	tokenSecret := os.Getenv("SHAREDCART_TOKEN_SECRET")
	if tokenSecret == "" {
		slog.Error("SHAREDCART_TOKEN_SECRET is required")
		os.Exit(1)
	}

	baseURL := os.Getenv("SHAREDCART_BASE_URL")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%s", port)
	}

	db, err := database.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	sendgridToken := os.Getenv("SENDGRID_API_TOKEN")
	fromEmail := os.Getenv("SENDGRID_FROM_EMAIL")
	emailClient := email.NewClient(sendgridToken, fromEmail, baseURL)
	if !emailClient.Configured() {
		slog.Warn("email sending disabled, set SENDGRID_API_TOKEN and SENDGRID_FROM_EMAIL")
	}

	cfg := server.Config{
		TokenSecret: tokenSecret,
		EmailClient: emailClient,
	}

	srv := server.New(db, cfg, logger)

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	// Hourly cleanup of expired verification/reset tokens and rate limit entries.
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.UserStore().PurgeExpiredTokens(); err != nil {
					slog.Error("purge expired tokens", "error", err)
				} else if n > 0 {
					slog.Info("purged expired tokens", "count", n)
				}
				srv.RateLimiter().Cleanup()
			case <-bgCtx.Done():
				return
			}
		}
	}()

	backupCfg := backup.Config{
		Bucket:          os.Getenv("SHAREDCART_BACKUP_BUCKET"),
		Region:          os.Getenv("SHAREDCART_BACKUP_REGION"),
		Endpoint:        os.Getenv("SHAREDCART_BACKUP_ENDPOINT"),
		AccessKeyID:     os.Getenv("SHAREDCART_BACKUP_ACCESS_KEY"),
		SecretAccessKey: os.Getenv("SHAREDCART_BACKUP_SECRET_KEY"),
		Passphrase:      os.Getenv("SHAREDCART_BACKUP_PASSPHRASE"),
	}
	if backupCfg.Enabled() {
		mgr := backup.NewManager(backupCfg, db, logger.With("component", "backup"))
		go mgr.Run(bgCtx)
	} else {
		slog.Info("backups disabled, set SHAREDCART_BACKUP_* to enable")
	}

	go func() {
		slog.Info("sharedcart starting", "addr", ":"+port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	bgCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
