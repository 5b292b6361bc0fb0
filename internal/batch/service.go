package batch

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/by-justin/cctvdownloader/internal/engine"
	"github.com/by-justin/cctvdownloader/internal/resolver"
	"github.com/by-justin/cctvdownloader/pkg/models"
	"github.com/by-justin/cctvdownloader/pkg/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// Resolver is the slice of the channel resolver the batch driver needs.
type Resolver interface {
	ResolveChannel(ctx context.Context, channelURL string) (*models.Channel, error)
	ListEpisodes(ctx context.Context, channelURL string, pageLimit int) ([]models.Episode, error)
	ResolveAll(ctx context.Context, episodes []models.Episode, workers int) ([]models.Episode, []resolver.ResolveFailure)
}

// Options are the per-run parameters of a batch.
type Options struct {
	ChannelURL      string
	PageLimit       int
	Workers         int
	FragmentThreads int
	OutputDir       string
	Progress        bool
}

// Failure records one episode the batch gave up on and at which stage.
type Failure struct {
	Episode models.Episode
	Stage   string
	Err     error
}

// Summary reports how a batch run went.
type Summary struct {
	Channel    string
	Found      int
	Resolved   int
	Downloaded int
	Skipped    int
	Failures   []Failure
}

// Service drives a whole batch: listing, manifest resolution, downloads.
type Service struct {
	log      *logrus.Logger
	resolver Resolver
	engine   engine.Engine
}

func NewService(log *logrus.Logger, res Resolver, eng engine.Engine) *Service {
	return &Service{log: log, resolver: res, engine: eng}
}

// Run executes one batch. Listing errors and an empty listing are fatal:
// without the listing there is nothing to do, and zero episodes means the
// site layout changed and needs investigation. Per-episode failures are
// recorded in the summary and the batch moves on.
func (s *Service) Run(ctx context.Context, opts Options) (*Summary, error) {
	channel, err := s.resolver.ResolveChannel(ctx, opts.ChannelURL)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"channel": channel.Title,
		"column":  channel.ID,
	}).Info("Starting batch")

	episodes, err := s.resolver.ListEpisodes(ctx, opts.ChannelURL, opts.PageLimit)
	if err != nil {
		return nil, err
	}
	if len(episodes) == 0 {
		return nil, fmt.Errorf("no episodes found for %s: the listing markup or API may have changed", opts.ChannelURL)
	}

	summary := &Summary{Channel: channel.Title, Found: len(episodes)}

	resolved, resolveFailures := s.resolver.ResolveAll(ctx, episodes, opts.Workers)
	for _, f := range resolveFailures {
		s.log.WithError(f.Err).WithField("title", f.Episode.DisplayTitle()).Warn("Episode skipped, manifest resolution failed")
		summary.Failures = append(summary.Failures, Failure{Episode: f.Episode, Stage: "resolve", Err: f.Err})
	}

	var playable []models.Episode
	for _, ep := range resolved {
		if ep.Resolved() {
			playable = append(playable, ep)
		}
	}
	summary.Resolved = len(playable)

	if err := ctx.Err(); err != nil {
		return summary, err
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return summary, fmt.Errorf("creating output directory: %w", err)
	}

	s.download(ctx, playable, opts, summary)

	s.log.WithFields(logrus.Fields{
		"found":      summary.Found,
		"resolved":   summary.Resolved,
		"downloaded": summary.Downloaded,
		"skipped":    summary.Skipped,
		"failed":     len(summary.Failures),
	}).Info("Batch finished")

	return summary, ctx.Err()
}

// download runs the resolved episodes through the engine with a bounded
// worker pool. Summary counters are mutex-guarded; the pool stops feeding
// work once the context is cancelled.
func (s *Service) download(ctx context.Context, episodes []models.Episode, opts Options, summary *Summary) {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(episodes) {
		workers = len(episodes)
	}

	var bar *progressbar.ProgressBar
	if opts.Progress {
		bar = progressbar.Default(int64(len(episodes)), "downloading")
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	jobs := make(chan models.Episode)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for ep := range jobs {
				s.downloadOne(ctx, workerID, ep, opts, summary, &mu)
				if bar != nil {
					bar.Add(1)
				}
			}
		}(w)
	}

	for _, ep := range episodes {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case jobs <- ep:
		}
	}
	close(jobs)
	wg.Wait()
}

func (s *Service) downloadOne(ctx context.Context, workerID int, ep models.Episode, opts Options, summary *Summary, mu *sync.Mutex) {
	if utils.VideoExists(opts.OutputDir, ep.Title) {
		s.log.WithField("title", ep.DisplayTitle()).Info("Video exists, skipping")
		mu.Lock()
		summary.Skipped++
		mu.Unlock()
		return
	}

	fail := func(stage string, err error) {
		s.log.WithError(err).WithFields(logrus.Fields{
			"worker_id": workerID,
			"title":     ep.DisplayTitle(),
			"stage":     stage,
		}).Error("Episode download failed")
		mu.Lock()
		summary.Failures = append(summary.Failures, Failure{Episode: ep, Stage: stage, Err: err})
		mu.Unlock()
	}

	tiers, err := s.engine.Formats(ctx, ep.Manifest)
	if err != nil {
		fail("probe", err)
		return
	}
	if len(tiers) == 0 {
		fail("probe", fmt.Errorf("engine reported no hls tiers for %s", ep.Manifest))
		return
	}
	// Highest tier is listed last
	tier := tiers[len(tiers)-1]

	task := engine.Task{
		ManifestURL:     ep.Manifest,
		Format:          tier,
		OutputPath:      utils.OutputPath(opts.OutputDir, ep.Title, tier, utils.SafeTitle(ep.Date)),
		FragmentThreads: opts.FragmentThreads,
	}

	s.log.WithFields(logrus.Fields{
		"worker_id": workerID,
		"title":     ep.DisplayTitle(),
		"format":    tier,
	}).Info("Downloading episode")

	if err := s.engine.Download(ctx, task); err != nil {
		fail("download", err)
		return
	}

	mu.Lock()
	summary.Downloaded++
	mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"worker_id": workerID,
		"title":     ep.DisplayTitle(),
		"output":    task.OutputPath,
	}).Info("Download complete")
}
