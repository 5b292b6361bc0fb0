package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/by-justin/cctvdownloader/internal/common/config"
	"github.com/by-justin/cctvdownloader/pkg/models"
	"github.com/sirupsen/logrus"
)

// manifestSniffer captures a manifest URL from a loaded episode page.
type manifestSniffer interface {
	Sniff(ctx context.Context, pageURL string) (string, error)
}

// Resolver turns a channel listing URL into episodes with playable manifest
// URLs. It holds no state between calls beyond its configuration.
type Resolver struct {
	cfg      *config.ResolverConfig
	log      *logrus.Logger
	client   *http.Client
	rewriter *HostRewriter
	sniffer  manifestSniffer
}

// New creates a Resolver from configuration. The HTTP client routes through
// the configured proxy when one is set; the CNTV CDN rejects some network
// origins with a 403, in which case all resolver traffic has to go through a
// host it accepts.
func New(cfg *config.ResolverConfig, log *logrus.Logger) (*Resolver, error) {
	rewriter, err := NewHostRewriter(cfg.Rewrites)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, err)
		}
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	r := &Resolver{
		cfg: cfg,
		log: log,
		client: &http.Client{
			Timeout:   time.Duration(cfg.Timeout) * time.Second,
			Transport: transport,
		},
		rewriter: rewriter,
	}

	if cfg.EnableSniffer {
		r.sniffer = NewSniffer(cfg, log)
	}

	return r, nil
}

// fetch performs a GET and returns the body. Any transport failure or
// non-2xx status comes back as a *FetchError carrying the URL and status so
// the operator can tell a blocked CDN host from a dead one.
func (r *Resolver) fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}
	return string(body), nil
}

// ResolveFailure records one episode that could not be resolved.
type ResolveFailure struct {
	Episode models.Episode
	Err     error
}

// ResolveAll resolves manifests for the given episodes with a bounded worker
// pool. Per-episode resolution is independent and read-only, so order of the
// input is preserved in the output; episodes that failed keep an empty
// manifest and are reported in the failure list.
func (r *Resolver) ResolveAll(ctx context.Context, episodes []models.Episode, workers int) ([]models.Episode, []ResolveFailure) {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(episodes) {
		workers = len(episodes)
	}

	out := make([]models.Episode, len(episodes))
	copy(out, episodes)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []ResolveFailure
	)

	jobs := make(chan int)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				resolved, err := r.ResolveManifest(ctx, out[i])
				if err != nil {
					mu.Lock()
					failures = append(failures, ResolveFailure{Episode: out[i], Err: err})
					mu.Unlock()
					continue
				}
				out[i] = resolved
			}
		}()
	}

	for i := range out {
		select {
		case <-ctx.Done():
			// Stop feeding work; in-flight fetches are cancelled by ctx
			close(jobs)
			wg.Wait()
			return out, failures
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	r.log.WithFields(logrus.Fields{
		"episodes": len(episodes),
		"failed":   len(failures),
	}).Info("Manifest resolution finished")

	return out, failures
}
