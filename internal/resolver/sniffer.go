package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/by-justin/cctvdownloader/internal/common/config"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// Sniffer resolves a manifest the hard way: it loads the episode page in a
// headless browser and captures the first .m3u8 request the player makes.
// Slower and heavier than the API path, but immune to page-markup changes.
type Sniffer struct {
	cfg *config.ResolverConfig
	log *logrus.Logger
}

func NewSniffer(cfg *config.ResolverConfig, log *logrus.Logger) *Sniffer {
	return &Sniffer{cfg: cfg, log: log}
}

// Sniff navigates to pageURL and returns the first manifest URL requested by
// the page. Returns a ResolutionError when nothing shows up before the
// configured timeout.
func (s *Sniffer) Sniff(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(s.cfg.UserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(s.log.Printf))
	defer browserCancel()

	linkChan := make(chan string, 1)
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventRequestWillBeSent); ok {
			if strings.Contains(e.Request.URL, ".m3u8") {
				select {
				case linkChan <- e.Request.URL:
				default:
				}
			}
		}
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- chromedp.Run(browserCtx,
			network.Enable(),
			network.SetBlockedURLs([]string{"*.png", "*.jpg", "*.jpeg", "*.gif"}),
			chromedp.Navigate(pageURL),
		)
	}()

	timer := time.NewTimer(time.Duration(s.cfg.SnifferTimeout) * time.Second)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()

		case manifest := <-linkChan:
			s.log.WithFields(logrus.Fields{
				"url":      pageURL,
				"manifest": manifest,
			}).Info("Sniffer captured manifest request")
			return manifest, nil

		case err := <-errChan:
			if err != nil {
				return "", &FetchError{URL: pageURL, Err: err}
			}
			// Navigation finished without a manifest request yet; the
			// player may still fire one, so keep waiting for the timer.
			errChan = nil

		case <-timer.C:
			return "", &ResolutionError{PageURL: pageURL}
		}
	}
}
