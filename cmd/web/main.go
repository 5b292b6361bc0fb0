package main

import (
	"fmt"

	"github.com/by-justin/cctvdownloader/internal/common/config"
	"github.com/by-justin/cctvdownloader/internal/common/logger"
	"github.com/by-justin/cctvdownloader/internal/common/messaging"
	"github.com/by-justin/cctvdownloader/internal/web/handler"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load the configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	webCfg := cfg.GetWebPanelConfig()
	dlCfg := cfg.GetDownloaderConfig()

	// Initialize logger
	log := logger.New(cfg)

	log.Infof("Web panel configuration: %+v", webCfg)

	// Initialize message consumer
	msgClient, err := messaging.NewRabbitMQClient(cfg.GetRabbitMQConfig(), log)
	if err != nil {
		log.Fatalf("Failed to create RabbitMQ client: %v", err)
	}
	defer msgClient.Close()

	// Initialize the gin router
	r := gin.Default()

	// Setup Handlers
	h := handler.NewHandler(webCfg, dlCfg, log, msgClient)

	// Register routes
	h.RegisterRoutes(r)

	// Start the web server
	addr := fmt.Sprintf("%s:%d", webCfg.Host, webCfg.Port)
	log.Infof("Starting web server on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start web server: %v", err)
	}
}
