// Command provision creates the DynamoDB tables the service writes to.
// It is idempotent and safe to run against tables that already exist.
package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/zap"

	"statbucket/infrastructure/config"
	"statbucket/infrastructure/di"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer container.Shutdown()

	if err := container.Store.EnsureTables(ctx); err != nil {
		container.Logger.Fatal("Failed to provision tables", zap.Error(err))
	}

	container.Logger.Info("Tables ready",
		zap.String("prefix", cfg.TablePrefix),
		zap.String("region", cfg.AWSRegion),
	)
}
