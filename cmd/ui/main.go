package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/5566cannotdead/OSSRanking/cfg"
	"github.com/5566cannotdead/OSSRanking/internal/checkpoint"
	"github.com/5566cannotdead/OSSRanking/internal/store"
	"github.com/5566cannotdead/OSSRanking/internal/ui"
	applog "github.com/5566cannotdead/OSSRanking/pkg/log"
)

func main() {
	// Parse command line flags
	port := flag.Int("port", 8080, "Port for the status server to listen on")
	flag.Parse()

	// Setup dependencies
	ctx := context.Background()
	loader, _ := cfg.NewViperLoader()
	config, err := loader.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, _ := applog.NewCslLogger()
	checkpoints, _ := checkpoint.NewStore(logger, config)
	users, _ := store.NewUserStore(logger, config)

	// Create and run the server
	server, err := ui.NewServer(logger, config, checkpoints, users, *port)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Run server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.Error(ctx, "Server failed to start: %v", err)
			os.Exit(1)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Wait for termination signal
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error(ctx, "Error during server shutdown: %v", err)
	}

	logger.Info(ctx, "Server shut down gracefully")
}
