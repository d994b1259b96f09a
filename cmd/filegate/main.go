package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/filegate/internal/api"
	"github.com/zots0127/filegate/internal/auth"
	"github.com/zots0127/filegate/internal/config"
	"github.com/zots0127/filegate/internal/keystore"
	"github.com/zots0127/filegate/internal/listing"
	"github.com/zots0127/filegate/internal/storage"
	"github.com/zots0127/filegate/internal/upload"
)

func main() {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	keys, err := keystore.Open(cfg.Keys.Database)
	if err != nil {
		log.Fatal("Failed to open key store: ", err)
	}
	defer keys.Close()

	store, err := newStore(cfg.Storage)
	if err != nil {
		log.Fatal("Failed to connect to object storage: ", err)
	}

	authorizer := auth.New(keys)
	uploads := upload.NewManager(store, authorizer)
	files := listing.NewService(store)

	router := gin.Default()
	api.New(authorizer, keys, uploads, files, store, cfg.Admin.Key).RegisterRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
}

func newStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Provider {
	case "s3":
		return storage.NewS3Store(storage.S3Config{
			Endpoint:   cfg.Endpoint,
			Region:     cfg.Region,
			AccessKey:  cfg.AccessKey,
			SecretKey:  cfg.SecretKey,
			Bucket:     cfg.Bucket,
			StagingDir: cfg.StagingDir,
			OpTimeout:  cfg.OpTimeout(),
		})
	default:
		return storage.NewMinioStore(storage.MinioConfig{
			Endpoint:   cfg.Endpoint,
			AccessKey:  cfg.AccessKey,
			SecretKey:  cfg.SecretKey,
			Bucket:     cfg.Bucket,
			UseSSL:     cfg.UseSSL,
			StagingDir: cfg.StagingDir,
			OpTimeout:  cfg.OpTimeout(),
		})
	}
}
