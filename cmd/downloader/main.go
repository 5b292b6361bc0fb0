package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/by-justin/cctvdownloader/internal/common/config"
	"github.com/by-justin/cctvdownloader/internal/common/logger"
	"github.com/by-justin/cctvdownloader/internal/common/messaging"
	"github.com/by-justin/cctvdownloader/internal/downloader/service"
	"github.com/by-justin/cctvdownloader/internal/engine"
)

func main() {
	// Load the configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	downloaderCfg := cfg.GetDownloaderConfig()
	rabbitCfg := cfg.GetRabbitMQConfig()

	// Initialize logger
	log := logger.New(cfg)

	log.Infof("Downloader configuration: %+v", downloaderCfg)

	// Initialize RabbitMQ connection
	messageClient, err := messaging.NewRabbitMQClient(rabbitCfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize RabbitMQ: %s", err)
	}
	defer messageClient.Close()

	// Initialize the download engine
	eng := engine.NewYtDlp(downloaderCfg, log)

	// Initialize the Downloader service
	downloaderService := service.NewDownloaderService(downloaderCfg, rabbitCfg, log, eng, messageClient)

	// Start the service
	if err := downloaderService.Start(); err != nil {
		log.Fatalf("Failed to start Downloader service: %s", err)
	}

	log.Info("Downloader service started successfully")

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Block until we receive a termination signal
	sig := <-sigCh
	log.Infof("Received signal %s, shutting down...", sig)

	downloaderService.Stop()
}
