package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/by-justin/cctvdownloader/internal/common/config"
	"github.com/by-justin/cctvdownloader/internal/common/messaging"
	"github.com/by-justin/cctvdownloader/internal/resolver"
	"github.com/by-justin/cctvdownloader/pkg/models"
	"github.com/sirupsen/logrus"
)

// Routing keys for the scraper service
const (
	CommandsRoutingKey = "commands.resolver"
	EpisodeRoutingKey  = "episode.resolved"
	LogRoutingKey      = "resolver.log"

	DefaultPageLimit   = 5
	DefaultConcurrency = 4
)

// Resolver is the slice of the channel resolver the service drives.
type Resolver interface {
	ListEpisodes(ctx context.Context, channelURL string, pageLimit int) ([]models.Episode, error)
	ResolveAll(ctx context.Context, episodes []models.Episode, workers int) ([]models.Episode, []resolver.ResolveFailure)
}

// ScraperService consumes start/stop commands, runs the channel resolver and
// publishes resolved episodes for the downloader service.
type ScraperService struct {
	cfg       *config.ResolverConfig
	rabbitCfg *config.RabbitMQConfig
	log       *logrus.Logger
	resolver  Resolver
	message   messaging.Client
	// Context cancellation supports graceful shutdown and stop commands
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewScraperService creates a new ScraperService
func NewScraperService(cfg *config.ResolverConfig, rabbitCfg *config.RabbitMQConfig, log *logrus.Logger, res Resolver, msg messaging.Client) *ScraperService {
	return &ScraperService{
		cfg:       cfg,
		rabbitCfg: rabbitCfg,
		log:       log,
		resolver:  res,
		message:   msg,
	}
}

// Start starts the ScraperService
func (s *ScraperService) Start() error {
	if err := s.setupMessaging(); err != nil {
		return fmt.Errorf("failed to set up messaging: %w", err)
	}

	return s.message.Consume(s.rabbitCfg.Queue.CommandQueue, func(msg []byte, _ string) error {
		return s.handleCommand(msg)
	})
}

// Stop gracefully stops the ScraperService
func (s *ScraperService) Stop() {
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}
	s.wg.Wait()
	s.log.Info("Scraper service stopped gracefully")
}

// setupMessaging declares and binds the queues the service talks to
func (s *ScraperService) setupMessaging() error {
	queues := []struct {
		name       string
		exchange   string
		routingKey string
	}{
		{s.rabbitCfg.Queue.CommandQueue, s.rabbitCfg.Exchange.Task, CommandsRoutingKey},
		{s.rabbitCfg.Queue.EpisodeQueue, s.rabbitCfg.Exchange.Task, EpisodeRoutingKey},
		{s.rabbitCfg.Queue.LogQueue, s.rabbitCfg.Exchange.Log, LogRoutingKey},
	}

	for _, q := range queues {
		if err := s.message.DeclareQueue(q.name); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.name, err)
		}

		if err := s.message.BindQueue(q.name, q.exchange, q.routingKey); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", q.name, err)
		}
	}

	return nil
}

// handleCommand processes incoming commands
func (s *ScraperService) handleCommand(msg []byte) error {
	var command models.Command
	if err := json.Unmarshal(msg, &command); err != nil {
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}

	s.log.WithField("command", command).Info("Received command")

	switch command.Action {
	case models.StartAction:
		if command.Data.ChannelURL == "" {
			return fmt.Errorf("start command is missing a channel URL")
		}

		// Only one batch at a time: a new start supersedes and cancels
		// any run still in flight, otherwise that run would outlive its
		// cancelFunc and no stop command could reach it
		if s.cancelFunc != nil {
			s.log.Info("Cancelling the previous resolution batch")
			s.cancelFunc()
		}

		// New context per run so a stop command only kills that run
		ctx, cancel := context.WithCancel(context.Background())
		s.cancelFunc = cancel

		pageLimit := getIntWithDefault(command.Data.PageLimit, DefaultPageLimit)
		concurrency := getIntWithDefault(command.Data.Concurrency, DefaultConcurrency)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(ctx, command.Data.ChannelURL, pageLimit, concurrency)
		}()

		return nil

	case models.StopAction:
		if s.cancelFunc != nil {
			s.log.Info("Stopping the running resolution batch")
			s.cancelFunc()
			s.cancelFunc = nil
		} else {
			s.log.Info("No resolution batch running")
		}
		return nil

	default:
		return fmt.Errorf("unknown command: %s", command.Action)
	}
}

// run lists the channel and resolves every episode, publishing each resolved
// episode as a download task. A listing failure or an empty listing is
// terminal for the run; per-episode failures only produce log messages.
func (s *ScraperService) run(ctx context.Context, channelURL string, pageLimit, concurrency int) {
	s.log.WithFields(logrus.Fields{
		"channel":   channelURL,
		"pageLimit": pageLimit,
	}).Info("Starting resolution batch")

	episodes, err := s.resolver.ListEpisodes(ctx, channelURL, pageLimit)
	if err != nil {
		if ctx.Err() != nil {
			s.log.Info("Resolution batch stopped during listing")
			return
		}
		s.log.WithError(err).Error("Error listing episodes")
		s.publishLog("error", nil, err, nil)
		return
	}

	if len(episodes) == 0 {
		err := fmt.Errorf("no episodes found for %s: the listing markup or API may have changed", channelURL)
		s.log.WithError(err).Error("Empty listing")
		s.publishLog("error", nil, err, nil)
		return
	}

	stats := &models.Stats{EpisodesFound: len(episodes)}

	resolved, failures := s.resolver.ResolveAll(ctx, episodes, concurrency)

	for _, ep := range resolved {
		if !ep.Resolved() {
			continue
		}
		stats.EpisodesResolved++
		s.publishEpisode(ep)
		s.publishLog("success", &ep, nil, stats)
	}

	for _, f := range failures {
		s.publishLog("error", &f.Episode, f.Err, stats)
	}

	if ctx.Err() != nil {
		s.log.Info("Resolution batch stopped by command")
		return
	}

	s.log.WithFields(logrus.Fields{
		"found":    stats.EpisodesFound,
		"resolved": stats.EpisodesResolved,
		"failed":   len(failures),
	}).Info("Resolution batch complete")
}

// publishEpisode publishes a resolved episode as a download task
func (s *ScraperService) publishEpisode(ep models.Episode) {
	if err := s.message.PublishJSON(s.rabbitCfg.Exchange.Task, EpisodeRoutingKey, ep); err != nil {
		s.log.WithError(err).WithField("title", ep.DisplayTitle()).Error("Failed to publish episode task")
	}
}

// publishLog publishes a progress log message
func (s *ScraperService) publishLog(status string, ep *models.Episode, err error, stats *models.Stats) {
	entry := models.ResolveLog{
		Status: status,
		Data:   ep,
		Stats:  stats,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	if pubErr := s.message.PublishJSON(s.rabbitCfg.Exchange.Log, LogRoutingKey, entry); pubErr != nil {
		s.log.WithError(pubErr).Error("Failed to publish log message")
	}
}

// Helper function to get int value with fallback default
func getIntWithDefault(value, defaultValue int) int {
	if value <= 0 {
		return defaultValue
	}
	return value
}
