package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/5566cannotdead/OSSRanking/cfg"
	"github.com/5566cannotdead/OSSRanking/internal/model"
	"github.com/5566cannotdead/OSSRanking/pkg/db"
	"github.com/5566cannotdead/OSSRanking/pkg/kafka"
	"github.com/5566cannotdead/OSSRanking/pkg/log"
)

func main() {
	// Load configuration
	loader, _ := cfg.NewViperLoader()
	config, err := loader.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger. The consumer runs unattended, so structured output.
	logger, err := log.NewZapLogger()
	if err != nil {
		fmt.Printf("Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Setup database
	mysql, _ := db.NewMysql(config)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create model
	developerMd, err := model.NewDeveloper(config, logger, mysql)
	if err != nil {
		logger.Error(ctx, "Failed to create developer model: %v", err)
		os.Exit(1)
	}

	// Migrate database
	if err := mysql.Migrate(developerMd); err != nil {
		logger.Error(ctx, "Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	startDeveloperConsumer(ctx, config, logger, developerMd)

	// Wait for termination signal
	<-sigCh
	logger.Info(ctx, "Received shutdown signal, gracefully shutting down...")
	cancel()
}

func startDeveloperConsumer(ctx context.Context, config *cfg.Config, logger log.Logger, developerMd *model.Developer) {
	consumer := kafka.NewConsumer(config, logger, config.Kafka.DeveloperTopic, config.Kafka.ConsumerGroup)

	batchSize := 100
	batchTimeout := 5 * time.Second
	messages := make(chan model.User, batchSize*2)

	// Batch processor
	go processBatchedDevelopers(ctx, messages, batchSize, batchTimeout, logger, developerMd)

	// Register handler for developer messages
	consumer.RegisterHandler("developer", func(data []byte) error {
		var user model.User
		if err := json.Unmarshal(data, &user); err != nil {
			return fmt.Errorf("failed to unmarshal developer message: %w", err)
		}

		select {
		case messages <- user:
		case <-ctx.Done():
			return ctx.Err()
		}

		return nil
	})

	// Start consumer in a goroutine
	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Error(ctx, "Developer consumer error: %v", err)
		}
	}()

	logger.Info(ctx, "Developer consumer started successfully")
}

// processBatchedDevelopers upserts developers into MySQL in batches
func processBatchedDevelopers(ctx context.Context, messages <-chan model.User, batchSize int,
	batchTimeout time.Duration, logger log.Logger, developerMd *model.Developer) {

	var batch []model.User
	timer := time.NewTimer(batchTimeout)

	for {
		select {
		case <-ctx.Done():
			// Flush remaining messages before exiting
			if len(batch) > 0 {
				processSingleBatch(ctx, batch, logger, developerMd)
			}
			return

		case msg := <-messages:
			batch = append(batch, msg)

			if len(batch) >= batchSize {
				processSingleBatch(ctx, batch, logger, developerMd)
				batch = nil
				timer.Reset(batchTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				processSingleBatch(ctx, batch, logger, developerMd)
				batch = nil
			}
			timer.Reset(batchTimeout)
		}
	}
}

func processSingleBatch(ctx context.Context, batch []model.User, logger log.Logger, developerMd *model.Developer) {
	if len(batch) == 0 {
		return
	}

	logger.Info(ctx, "Processing batch of %d developers", len(batch))

	if err := developerMd.UpsertBatch(batch); err != nil {
		logger.Error(ctx, "Failed to save batch of developers: %v", err)
	} else {
		logger.Info(ctx, "Successfully saved batch of %d developers", len(batch))
	}
}
