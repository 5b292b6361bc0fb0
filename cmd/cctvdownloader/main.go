package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/by-justin/cctvdownloader/internal/batch"
	"github.com/by-justin/cctvdownloader/internal/common/config"
	"github.com/by-justin/cctvdownloader/internal/common/logger"
	"github.com/by-justin/cctvdownloader/internal/engine"
	"github.com/by-justin/cctvdownloader/internal/resolver"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

func main() {
	pages := flag.IntP("pages", "n", 10, "Maximum number of listing pages to crawl")
	outputDir := flag.StringP("output-dir", "d", "", "Directory to save downloaded videos")
	workers := flag.IntP("workers", "j", 0, "Number of download workers")
	fragments := flag.IntP("fragment-threads", "N", 0, "Number of fragment threads per download")
	ytDlpDir := flag.StringP("yt-dlp-dir", "D", "", "Directory of the yt-dlp checkout that contains __main__.py")
	skipCheck := flag.Bool("skip-check", false, "Skip verifying the download engine before the batch")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <channel_url>\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	channelURL := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Flags override the file/env configuration
	if *outputDir != "" {
		cfg.Downloader.OutputDir = *outputDir
	}
	if *workers > 0 {
		cfg.Downloader.Concurrency = *workers
	}
	if *fragments > 0 {
		cfg.Downloader.FragmentThreads = *fragments
	}
	if *ytDlpDir != "" {
		cfg.Downloader.YtDlpDir = *ytDlpDir
	}
	if *debug {
		cfg.App.LogLevel = int(logrus.DebugLevel)
	}

	log := logger.New(cfg)

	res, err := resolver.New(cfg.GetResolverConfig(), log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create resolver")
	}

	eng := engine.NewYtDlp(cfg.GetDownloaderConfig(), log)

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received signal, stopping batch")
		cancel()
	}()

	if !*skipCheck && !cfg.Downloader.SkipCheck {
		log.Info("Verifying the download engine")
		if err := eng.Verify(ctx); err != nil {
			log.WithError(err).Fatal("Download engine is not configured correctly")
		}
		log.Info("Engine check passed")
	}

	svc := batch.NewService(log, res, eng)

	summary, err := svc.Run(ctx, batch.Options{
		ChannelURL:      channelURL,
		PageLimit:       *pages,
		Workers:         cfg.Downloader.Concurrency,
		FragmentThreads: cfg.Downloader.FragmentThreads,
		OutputDir:       cfg.Downloader.OutputDir,
		Progress:        true,
	})
	if err != nil {
		log.WithError(err).Fatal("Batch failed")
	}

	for _, f := range summary.Failures {
		log.WithError(f.Err).WithFields(logrus.Fields{
			"title": f.Episode.DisplayTitle(),
			"stage": f.Stage,
		}).Warn("Episode was skipped")
	}

	log.WithFields(logrus.Fields{
		"channel":    summary.Channel,
		"found":      summary.Found,
		"resolved":   summary.Resolved,
		"downloaded": summary.Downloaded,
		"skipped":    summary.Skipped,
		"failed":     len(summary.Failures),
	}).Info("All done")

	if summary.Downloaded == 0 && len(summary.Failures) > 0 {
		os.Exit(1)
	}
}
