package main

import (
	"context"
	stdlog "log"
	"net/http"

	"go.uber.org/zap"

	"partflow/m/domain"
	"partflow/m/internal/api"
	"partflow/m/internal/backup"
	"partflow/m/internal/config"
	"partflow/m/internal/database"
	"partflow/m/internal/events"
	"partflow/m/internal/localdb"
	"partflow/m/internal/logger"
	"partflow/m/internal/migrations"
	"partflow/m/internal/remote"
	"partflow/m/internal/seed"
	"partflow/m/internal/store"
	"partflow/m/internal/syncer"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.Env, "partflow")
	if err != nil {
		stdlog.Fatalf("logger init: %v", err)
	}
	defer log.Sync()

	ctx := context.Background()
	log.Info("Starting PartFlow server...", zap.String("environment", cfg.Env))

	db, err := database.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	data, err := seed.Load(cfg.SeedFile)
	if err != nil {
		log.Fatal("Failed to load seed data", zap.Error(err))
	}
	if cfg.SeedItems != "" {
		if data.Items, err = seed.LoadItemsCSV(cfg.SeedItems, log); err != nil {
			log.Fatal("Failed to load item catalog", zap.Error(err))
		}
	}
	data.Users = append(data.Users, domain.User{
		Username: cfg.Admin.Username,
		Password: cfg.Admin.Password,
		FullName: cfg.Admin.FullName,
		Role:     "admin",
	})

	var pub events.Publisher = events.Nop{}
	if cfg.Redis.Addr != "" {
		client, err := events.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("Redis unavailable, events disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		} else {
			defer client.Close()
			pub = events.NewRedisPublisher(client, "partflow")
		}
	}

	repo, err := localdb.Open(ctx, store.New(db), data, log, localdb.WithPublisher(pub))
	if err != nil {
		log.Fatal("Failed to open local repository", zap.Error(err))
	}

	rc := remote.NewClient(cfg.Sync.BackendURL, cfg.Sync.APIKey, cfg.Sync.Timeout)
	coord := syncer.New(repo, rc, backup.NewWriter(cfg.BackupDir, log), pub, log)

	handler, err := api.New(repo, coord, cfg.Secret, cfg.Sync.RateLimit, log)
	if err != nil {
		log.Fatal("Invalid sync rate limit", zap.String("rate", cfg.Sync.RateLimit), zap.Error(err))
	}

	log.Info("PartFlow server listening", zap.String("port", cfg.HTTPPort))
	if err := http.ListenAndServe(":"+cfg.HTTPPort, handler.Router()); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
