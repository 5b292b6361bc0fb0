package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"

	"github.com/by-justin/cctvdownloader/pkg/models"
	"github.com/sirupsen/logrus"
)

// Episode pages embed the player id as `var guid = "<32 hex>"`.
var guidRe = regexp.MustCompile(`guid\s*=\s*"([0-9a-fA-F]{32})"`)

// videoInfoResponse is the shape of the getHttpVideoInfo payload. Only the
// HLS manifest URL matters here.
type videoInfoResponse struct {
	HLSURL string `json:"hls_url"`
	Title  string `json:"title"`
}

// ResolveManifest fetches the episode page, locates the embedded player guid,
// asks the video-info API for the HLS manifest and applies the host-rewrite
// rule. On any failure the returned episode keeps an empty manifest. When the
// page embeds no guid and the sniffer is enabled, a headless browser pass is
// tried before giving up with a ResolutionError.
func (r *Resolver) ResolveManifest(ctx context.Context, episode models.Episode) (models.Episode, error) {
	if u, err := url.Parse(episode.PageURL); err != nil || !u.IsAbs() {
		return episode, fmt.Errorf("episode page URL %q is not absolute", episode.PageURL)
	}

	body, err := r.fetch(ctx, episode.PageURL)
	if err != nil {
		return episode, err
	}

	m := guidRe.FindStringSubmatch(body)
	if m == nil {
		return r.sniffFallback(ctx, episode)
	}
	guid := m[1]

	infoURL := fmt.Sprintf("%s?pid=%s", r.cfg.VideoInfoAPI, guid)
	body, err = r.fetch(ctx, infoURL)
	if err != nil {
		return episode, err
	}

	var info videoInfoResponse
	if err := json.Unmarshal([]byte(body), &info); err != nil {
		return episode, &ParseError{URL: infoURL, Detail: fmt.Sprintf("decoding video info: %v", err)}
	}

	if info.HLSURL == "" {
		return r.sniffFallback(ctx, episode)
	}

	manifest := r.rewriter.Rewrite(info.HLSURL)
	if u, err := url.Parse(manifest); err != nil || !u.IsAbs() {
		return episode, &ParseError{URL: infoURL, Detail: fmt.Sprintf("manifest URL %q is not absolute", manifest)}
	}

	r.log.WithFields(logrus.Fields{
		"title":    episode.DisplayTitle(),
		"manifest": manifest,
	}).Debug("Resolved manifest")

	episode.Manifest = manifest
	return episode, nil
}

// sniffFallback runs the headless-browser sniffer when enabled, otherwise
// reports the episode as unresolvable.
func (r *Resolver) sniffFallback(ctx context.Context, episode models.Episode) (models.Episode, error) {
	if r.sniffer == nil {
		return episode, &ResolutionError{PageURL: episode.PageURL}
	}

	r.log.WithField("url", episode.PageURL).Info("No embedded manifest reference, trying sniffer")

	manifest, err := r.sniffer.Sniff(ctx, episode.PageURL)
	if err != nil {
		return episode, err
	}

	manifest = r.rewriter.Rewrite(manifest)
	if u, err := url.Parse(manifest); err != nil || !u.IsAbs() {
		return episode, &ParseError{URL: episode.PageURL, Detail: fmt.Sprintf("manifest URL %q is not absolute", manifest)}
	}

	episode.Manifest = manifest
	return episode, nil
}
