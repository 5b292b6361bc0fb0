package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/by-justin/cctvdownloader/internal/common/config"
	"github.com/by-justin/cctvdownloader/internal/common/logger"
	"github.com/by-justin/cctvdownloader/internal/common/messaging"
	"github.com/by-justin/cctvdownloader/internal/resolver"
	"github.com/by-justin/cctvdownloader/internal/scraper/service"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load the configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	resolverCfg := cfg.GetResolverConfig()
	rabbitCfg := cfg.GetRabbitMQConfig()

	// Initialize logger
	log := logger.New(cfg)

	log.WithFields(logrus.Fields{
		"component": "scraper_main",
		"config":    fmt.Sprintf("%+v", resolverCfg),
	}).Debug("Resolver configuration loaded")

	// Create a new RabbitMQ client
	messagingClient, err := messaging.NewRabbitMQClient(rabbitCfg, log)
	if err != nil {
		log.WithFields(logrus.Fields{
			"component": "scraper_main",
			"error":     err,
		}).Fatal("Failed to create RabbitMQ client")
	}
	defer messagingClient.Close()

	// Create the channel resolver
	res, err := resolver.New(resolverCfg, log)
	if err != nil {
		log.WithFields(logrus.Fields{
			"component": "scraper_main",
			"error":     err,
		}).Fatal("Failed to create resolver")
	}

	// Create a new Scraper service
	scraperService := service.NewScraperService(resolverCfg, rabbitCfg, log, res, messagingClient)

	// Start the service
	if err := scraperService.Start(); err != nil {
		log.WithFields(logrus.Fields{
			"component": "scraper_main",
			"error":     err,
		}).Fatal("Failed to start scraper service")
	}

	log.WithField("component", "scraper_main").Info("Scraper service started successfully")

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Block until we receive a termination signal
	sig := <-sigCh
	log.WithFields(logrus.Fields{
		"component": "scraper_main",
		"signal":    sig,
	}).Info("Received signal, shutting down")

	scraperService.Stop()

	log.WithField("component", "scraper_main").Info("Scraper service stopped")
}
