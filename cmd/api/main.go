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

	"organiflow/api/internal/app"
	"organiflow/api/internal/audit"
	"organiflow/api/internal/cache"
	"organiflow/api/internal/config"
	"organiflow/api/internal/export"
	"organiflow/api/internal/search"
	"organiflow/api/internal/snapshot"
	"organiflow/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logger := cfg.Logger()
	log := logrus.NewEntry(logger)
	ctx := context.Background()

	dataStore, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer dataStore.Close()

	if cfg.SeedDemo {
		seeded, err := dataStore.SeedDemo(ctx)
		if err != nil {
			log.WithError(err).Fatal("seeding demo employees failed")
		}
		if seeded {
			log.Info("seeded demo employees")
		}
	}

	deps := app.Deps{Store: dataStore, Charts: export.NewService(), Logger: log}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := cache.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("redis connection failed")
		}
		defer redisStore.Close()
		cached := cache.NewCachedSource(dataStore, redisStore, cfg.CacheTTL, log)
		deps.Source = cached
		writer := cache.NewInvalidatingWriter(dataStore, cached)
		deps.Updater = writer
		deps.Creator = writer
		deps.Lock = redisStore
		log.Info("using redis for record cache and gesture lock")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meiliClient.Close()
	}
	deps.Search = search.NewService(meiliClient, search.NewPgSearch(dataStore.DB()), log)

	if strings.TrimSpace(cfg.AuditRepoDir) != "" {
		deps.Audit = audit.New(cfg.AuditRepoDir)
	}

	if cfg.Minio.Enabled() {
		exporter, err := snapshot.NewExporter(snapshot.Config{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
		})
		if err != nil {
			log.WithError(err).Fatal("object storage setup failed")
		}
		deps.Snapshots = exporter
	}

	service := app.New(cfg, deps)
	defer service.Close()
	if err := service.Bootstrap(ctx); err != nil {
		log.WithError(err).Warn("initial load failed; retrying on first request")
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, cfg.MetricsPath, log)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Addr).Info("organiflow API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
}
