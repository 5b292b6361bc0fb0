package handler

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/by-justin/cctvdownloader/internal/common/config"
	"github.com/by-justin/cctvdownloader/internal/common/messaging"
	scraper "github.com/by-justin/cctvdownloader/internal/scraper/service"
	"github.com/by-justin/cctvdownloader/internal/web/websocket"
	"github.com/by-justin/cctvdownloader/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Handler wires the control panel API to the message queues and the
// WebSocket hub.
type Handler struct {
	webCfg      *config.WebPanelConfig
	downloadCfg *config.DownloaderConfig
	log         *logrus.Logger
	msgClient   messaging.Client
	wsHub       *websocket.Hub

	mu    sync.Mutex
	stats models.Stats
}

func NewHandler(webCfg *config.WebPanelConfig, dl *config.DownloaderConfig, log *logrus.Logger, msgClient messaging.Client) *Handler {
	wsHub := websocket.NewHub(log)
	go wsHub.Run()

	handler := &Handler{
		webCfg:      webCfg,
		downloadCfg: dl,
		log:         log,
		msgClient:   msgClient,
		wsHub:       wsHub,
	}

	handler.setupLogConsumer()

	return handler
}

// RegisterRoutes registers all the routes for the web handler
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/", h.IndexHandler())
	r.GET("/ws", h.WebSocketHandler())

	api := r.Group("/api")
	{
		api.POST("/start", h.StartHandler())
		api.POST("/stop", h.StopHandler())
		api.GET("/stats", h.StatsHandler())
	}
}

// IndexHandler reports the panel configuration
func (h *Handler) IndexHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name": "cctvdownloader control panel",
			"config": gin.H{
				"output_dir":  h.downloadCfg.OutputDir,
				"concurrency": h.downloadCfg.Concurrency,
			},
		})
	}
}

// WebSocketHandler returns the WebSocket connection handler
func (h *Handler) WebSocketHandler() gin.HandlerFunc {
	return websocket.WebSocketHandler(h.wsHub, h.log)
}

// StartHandler publishes a start command for the scraper service
func (h *Handler) StartHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			ChannelURL  string `json:"channel_url"`
			PageLimit   int    `json:"page_limit"`
			Concurrency int    `json:"concurrency"`
		}

		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}

		if req.ChannelURL == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "channel_url is required",
			})
			return
		}
		if req.PageLimit <= 0 {
			req.PageLimit = scraper.DefaultPageLimit
		}
		if req.Concurrency <= 0 {
			req.Concurrency = h.downloadCfg.Concurrency
		}

		command := models.Command{
			Action: models.StartAction,
			Data: models.CommandData{
				ChannelURL:  req.ChannelURL,
				PageLimit:   req.PageLimit,
				Concurrency: req.Concurrency,
			},
		}

		if err := h.publishCommand(command); err != nil {
			h.log.WithError(err).Error("Failed to publish start command")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to start the resolver",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Resolution batch started",
			"config": gin.H{
				"channel_url": req.ChannelURL,
				"page_limit":  req.PageLimit,
				"concurrency": req.Concurrency,
			},
		})

		h.broadcastStatus("Resolution batch started", "info")
	}
}

// StopHandler publishes a stop command for the scraper service
func (h *Handler) StopHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		command := models.Command{
			Action: models.StopAction,
		}

		if err := h.publishCommand(command); err != nil {
			h.log.WithError(err).Error("Failed to publish stop command")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to stop the resolver",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Stop command sent",
		})

		h.broadcastStatus("Resolution batch is being stopped", "info")
	}
}

// StatsHandler returns the running totals gathered from the log queue
func (h *Handler) StatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.mu.Lock()
		stats := h.stats
		h.mu.Unlock()

		c.JSON(http.StatusOK, stats)
	}
}

// setupLogConsumer feeds pipeline log messages into the WebSocket hub and
// keeps the stats counters current
func (h *Handler) setupLogConsumer() {
	queueName := h.msgClient.GetConfig().Queue.LogQueue

	err := h.msgClient.Consume(queueName, func(message []byte, routingKey string) error {
		switch routingKey {
		case scraper.LogRoutingKey:
			var entry models.ResolveLog
			if err := json.Unmarshal(message, &entry); err != nil {
				h.log.WithError(err).Error("Failed to unmarshal resolver log message")
				return err
			}

			if entry.Stats != nil {
				h.mu.Lock()
				h.stats.EpisodesFound = entry.Stats.EpisodesFound
				h.stats.EpisodesResolved = entry.Stats.EpisodesResolved
				h.mu.Unlock()
			}

			h.broadcastJSON(map[string]any{
				"type":   "resolver_log",
				"status": entry.Status,
				"data":   entry.Data,
				"error":  entry.Error,
				"stats":  entry.Stats,
			})

		default:
			var entry models.DownloadLog
			if err := json.Unmarshal(message, &entry); err != nil {
				h.log.WithError(err).Error("Failed to unmarshal downloader log message")
				return err
			}

			if entry.Status == "success" {
				h.mu.Lock()
				h.stats.VideosDownloaded++
				h.mu.Unlock()
			}

			h.broadcastJSON(map[string]any{
				"type":   "download_log",
				"status": entry.Status,
				"data":   entry.Data,
				"error":  entry.Error,
			})
		}

		return nil
	})

	if err != nil {
		h.log.WithError(err).Error("Failed to setup log consumer")
	}
}

// publishCommand publishes a command to the command queue
func (h *Handler) publishCommand(command models.Command) error {
	return h.msgClient.PublishJSON(
		h.msgClient.GetConfig().Exchange.Task,
		scraper.CommandsRoutingKey,
		command,
	)
}

// broadcastStatus broadcasts a status message to all WebSocket clients
func (h *Handler) broadcastStatus(message string, status string) {
	h.broadcastJSON(map[string]any{
		"type":    "status",
		"message": message,
		"status":  status,
	})
}

func (h *Handler) broadcastJSON(payload map[string]any) {
	wsMessage, err := json.Marshal(payload)
	if err != nil {
		h.log.WithError(err).Error("Failed to marshal WebSocket message")
		return
	}

	h.wsHub.Broadcast(wsMessage)
}
