package engine

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/by-justin/cctvdownloader/internal/common/config"
	"github.com/sirupsen/logrus"
)

// Probe link used by Verify. A stable archived episode that yields all four
// HLS tiers on a correctly configured engine.
const verifyLink = "https://tv.cctv.com/2024/06/14/VIDEAO2aMkgnG6AouAOuSKs1240614.shtml"

const verifyTiers = 4

var hlsTierRe = regexp.MustCompile(`\bhls-\d+\b`)

// YtDlp drives a yt-dlp checkout as a subprocess.
type YtDlp struct {
	dir string
	log *logrus.Logger
}

func NewYtDlp(cfg *config.DownloaderConfig, log *logrus.Logger) *YtDlp {
	return &YtDlp{dir: cfg.YtDlpDir, log: log}
}

func (y *YtDlp) command(ctx context.Context, args ...string) *exec.Cmd {
	full := append([]string{filepath.Join(y.dir, "__main__.py")}, args...)
	return exec.CommandContext(ctx, "python3", full...)
}

// Formats runs the engine's format listing (-F) and returns the HLS tier
// identifiers it reports, worst first.
func (y *YtDlp) Formats(ctx context.Context, url string) ([]string, error) {
	cmd := y.command(ctx, "-F", url)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("listing formats for %s: %w", url, err)
	}
	return parseFormats(string(out)), nil
}

// parseFormats extracts distinct hls-N tokens from a format listing, in
// first-appearance order.
func parseFormats(out string) []string {
	var (
		tiers []string
		seen  = make(map[string]struct{})
	)
	for _, tier := range hlsTierRe.FindAllString(out, -1) {
		if _, ok := seen[tier]; ok {
			continue
		}
		seen[tier] = struct{}{}
		tiers = append(tiers, tier)
	}
	return tiers
}

// Download invokes the engine against the manifest URL. The engine handles
// segment fetching and muxing; all this side does is pick where the file
// lands and how many fragment threads to use.
func (y *YtDlp) Download(ctx context.Context, task Task) error {
	args := []string{"-f", task.Format, task.ManifestURL,
		"-N", strconv.Itoa(task.FragmentThreads),
		"-o", task.OutputPath,
	}

	cmd := y.command(ctx, args...)
	y.log.WithFields(logrus.Fields{
		"manifest": task.ManifestURL,
		"format":   task.Format,
		"output":   task.OutputPath,
	}).Debug("Invoking download engine")

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("engine failed for %s: %w: %s", task.ManifestURL, err, lastLine(out))
	}
	return nil
}

// Verify probes a known episode and checks that the engine reports the
// expected tier count, catching a missing or misconfigured checkout before a
// long batch starts.
func (y *YtDlp) Verify(ctx context.Context) error {
	tiers, err := y.Formats(ctx, verifyLink)
	if err != nil {
		return err
	}
	if len(tiers) != verifyTiers {
		return fmt.Errorf("engine reported %d hls tiers for the probe link, want %d", len(tiers), verifyTiers)
	}
	return nil
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
