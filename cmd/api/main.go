package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"tablero/api/internal/app"
	"tablero/api/internal/attachments"
	"tablero/api/internal/boardlock"
	"tablero/api/internal/config"
	"tablero/api/internal/email"
	"tablero/api/internal/logging"
	"tablero/api/internal/search"
	"tablero/api/internal/session"
	"tablero/api/internal/store"
	"tablero/api/internal/store/mongostore"
)

const boardLockTTL = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("configuration error")
	}
	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		logger.WithError(err).Fatal("migrations failed")
	}

	dataStore := store.NewPostgresStore(db)
	deps := app.Deps{
		Store:  dataStore,
		Boards: dataStore,
		Log:    logger,
	}

	if cfg.BoardStore == config.BoardStoreMongo {
		boards, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			logger.WithError(err).Fatal("mongodb connection failed")
		}
		defer boards.Close(context.Background())
		if err := boards.EnsureIndexes(ctx); err != nil {
			logger.WithError(err).Fatal("mongodb index setup failed")
		}
		deps.Boards = boards
		deps.Checks = append(deps.Checks, app.ReadinessCheck{Name: "mongodb", Ping: boards.Ping})
		logger.Info("using MongoDB for board storage")
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		client, err := session.Dial(ctx, cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Fatal("redis connection failed")
		}
		defer client.Close()
		sessions := session.NewRedisStore(client)
		deps.Sessions = sessions
		deps.Locker = boardlock.NewRedis(client, boardLockTTL)
		deps.Checks = append(deps.Checks, app.ReadinessCheck{Name: "redis", Ping: sessions.Ping})
		logger.Info("using Redis for sessions and board locks")
	} else {
		logger.Info("using PostgreSQL for sessions and an in-process board lock")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewPgFTS(db), logger)
	deps.Search = searchService
	go searchService.ReindexAllFromPG(context.Background())

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	deps.Mailer = mailer
	if !cfg.SMTPEnabled() {
		logger.Warn("SMTP is not configured; verification and reset tokens are returned in API responses")
	}

	if cfg.ObjectStorageEnabled() {
		files, err := attachments.New(attachments.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			logger.WithError(err).Fatal("object storage setup failed")
		}
		if err := files.EnsureBucket(ctx); err != nil {
			logger.WithError(err).Fatal("object storage bucket setup failed")
		}
		deps.Files = files
	}

	service := app.New(cfg, deps)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.Addr).Info("Tablero API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown error")
	}
}
