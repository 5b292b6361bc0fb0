package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/by-justin/cctvdownloader/internal/common/config"
	"github.com/by-justin/cctvdownloader/internal/common/messaging"
	"github.com/by-justin/cctvdownloader/internal/engine"
	"github.com/by-justin/cctvdownloader/pkg/models"
	"github.com/by-justin/cctvdownloader/pkg/utils"
	"github.com/sirupsen/logrus"
)

const (
	EpisodeRoutingKey = "episode.resolved"
	LogRoutingKey     = "downloader.log"
)

// downloadJob represents a single queued episode
type downloadJob struct {
	Episode models.Episode
}

// DownloaderService consumes resolved episodes and runs them through the
// external download engine with a bounded worker pool.
type DownloaderService struct {
	config    *config.DownloaderConfig
	rabbitCfg *config.RabbitMQConfig
	log       *logrus.Logger
	engine    engine.Engine
	message   messaging.Client

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

func NewDownloaderService(cfg *config.DownloaderConfig, rabbitCfg *config.RabbitMQConfig, log *logrus.Logger, eng engine.Engine, message messaging.Client) *DownloaderService {
	return &DownloaderService{
		config:    cfg,
		rabbitCfg: rabbitCfg,
		log:       log,
		engine:    eng,
		message:   message,
	}
}

// Start starts the Downloader service
func (s *DownloaderService) Start() error {
	if err := s.setupMessaging(); err != nil {
		return fmt.Errorf("failed to setup messaging: %w", err)
	}

	if err := os.MkdirAll(s.config.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelFunc = cancel

	jobs := make(chan downloadJob, s.config.Concurrency)

	for w := 1; w <= s.config.Concurrency; w++ {
		s.wg.Add(1)
		go s.worker(ctx, w, jobs)
	}

	return s.message.Consume(s.rabbitCfg.Queue.EpisodeQueue, func(msg []byte, routingKey string) error {
		if routingKey != EpisodeRoutingKey {
			return nil
		}

		var ep models.Episode
		if err := json.Unmarshal(msg, &ep); err != nil {
			return fmt.Errorf("failed to unmarshal episode: %w", err)
		}

		if !ep.Resolved() {
			s.log.WithField("title", ep.DisplayTitle()).Warn("Dropping episode task without a manifest")
			return nil
		}

		s.log.WithFields(logrus.Fields{
			"title":    ep.DisplayTitle(),
			"manifest": ep.Manifest,
		}).Info("Received episode to download")

		select {
		case jobs <- downloadJob{Episode: ep}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// Stop stops the Downloader service
func (s *DownloaderService) Stop() {
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}
	s.log.Info("Downloader service stopped")
}

// setupMessaging declares and binds the queues the service talks to
func (s *DownloaderService) setupMessaging() error {
	if err := s.message.DeclareQueue(s.rabbitCfg.Queue.EpisodeQueue); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", s.rabbitCfg.Queue.EpisodeQueue, err)
	}

	if err := s.message.BindQueue(s.rabbitCfg.Queue.EpisodeQueue, s.rabbitCfg.Exchange.Task, EpisodeRoutingKey); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", s.rabbitCfg.Queue.EpisodeQueue, err)
	}

	if err := s.message.DeclareQueue(s.rabbitCfg.Queue.LogQueue); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", s.rabbitCfg.Queue.LogQueue, err)
	}

	return s.message.BindQueue(s.rabbitCfg.Queue.LogQueue, s.rabbitCfg.Exchange.Log, LogRoutingKey)
}

// worker handles download jobs
func (s *DownloaderService) worker(ctx context.Context, id int, jobs <-chan downloadJob) {
	defer s.wg.Done()
	s.log.WithField("worker_id", id).Info("Starting download worker")

	for {
		select {
		case <-ctx.Done():
			s.log.WithField("worker_id", id).Info("Worker shutting down")
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}

			s.log.WithFields(logrus.Fields{
				"worker_id": id,
				"title":     job.Episode.DisplayTitle(),
			}).Info("Worker processing download")

			if err := s.download(ctx, job.Episode); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.WithError(err).Error("Error downloading episode")
				s.publishLog("error", job.Episode, err)
				continue
			}

			s.publishLog("success", job.Episode, nil)
		}
	}
}

// download runs one episode through the engine, skipping episodes that are
// already on disk.
func (s *DownloaderService) download(ctx context.Context, ep models.Episode) error {
	if utils.VideoExists(s.config.OutputDir, ep.Title) {
		s.log.WithField("title", ep.DisplayTitle()).Info("Video exists, skipping")
		return nil
	}

	tiers, err := s.engine.Formats(ctx, ep.Manifest)
	if err != nil {
		return err
	}
	if len(tiers) == 0 {
		return fmt.Errorf("engine reported no hls tiers for %s", ep.Manifest)
	}
	tier := tiers[len(tiers)-1]

	return s.engine.Download(ctx, engine.Task{
		ManifestURL:     ep.Manifest,
		Format:          tier,
		OutputPath:      utils.OutputPath(s.config.OutputDir, ep.Title, tier, utils.SafeTitle(ep.Date)),
		FragmentThreads: s.config.FragmentThreads,
	})
}

// publishLog publishes a download log message
func (s *DownloaderService) publishLog(status string, ep models.Episode, err error) {
	entry := models.DownloadLog{
		Status: status,
		Data:   ep,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	if pubErr := s.message.PublishJSON(s.rabbitCfg.Exchange.Log, LogRoutingKey, entry); pubErr != nil {
		s.log.WithError(pubErr).Error("Failed to publish download log")
	}
}
