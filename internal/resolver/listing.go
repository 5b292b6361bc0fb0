package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/by-justin/cctvdownloader/pkg/models"
	"github.com/by-justin/cctvdownloader/pkg/utils"
	"github.com/sirupsen/logrus"
)

// The listing API wraps its JSON payload in a JSONP callback with this name.
const jsonpCallback = "lanmu_0"

var (
	columnIDRe = regexp.MustCompile(`TOPC[0-9]+`)
	titleRe    = regexp.MustCompile(`<title>(.*?)</title>`)
)

// videoListResponse is the shape of the getVideoListByColumn payload.
type videoListResponse struct {
	Data struct {
		Total int `json:"total"`
		List  []struct {
			GUID  string `json:"guid"`
			Title string `json:"title"`
			Time  string `json:"time"`
			URL   string `json:"url"`
		} `json:"list"`
	} `json:"data"`
}

// ResolveChannel fetches the channel page and extracts the column id and
// program title the listing API is keyed on.
func (r *Resolver) ResolveChannel(ctx context.Context, channelURL string) (*models.Channel, error) {
	body, err := r.fetch(ctx, channelURL)
	if err != nil {
		return nil, err
	}

	id := columnIDRe.FindString(body)
	if id == "" {
		return nil, &ParseError{URL: channelURL, Detail: "no TOPC column id in page"}
	}

	var title string
	if m := titleRe.FindStringSubmatch(body); m != nil {
		title = strings.TrimSpace(m[1])
	}

	return &models.Channel{ID: id, Title: title, URL: channelURL}, nil
}

// ListEpisodes paginates the listing API for the channel behind channelURL
// and returns every distinct episode in site-declared order. Pagination is
// strictly sequential and monotonic: it stops at the first page that yields
// zero new episodes, or after pageLimit pages.
func (r *Resolver) ListEpisodes(ctx context.Context, channelURL string, pageLimit int) ([]models.Episode, error) {
	if pageLimit < 1 {
		return nil, fmt.Errorf("page limit must be at least 1, got %d", pageLimit)
	}

	channel, err := r.ResolveChannel(ctx, channelURL)
	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"channel": channel.Title,
		"column":  channel.ID,
	}).Info("Listing episodes")

	var (
		episodes []models.Episode
		seen     = make(map[string]struct{})
	)

	for page := 1; page <= pageLimit; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageURL := fmt.Sprintf("%s?id=%s&n=%d&sort=desc&p=%d&d=&mode=0&serviceId=tvcctv&callback=%s",
			r.cfg.ListingAPI, channel.ID, r.cfg.PageSize, page, jsonpCallback)

		body, err := r.fetch(ctx, pageURL)
		if err != nil {
			return nil, err
		}

		payload, err := stripCallback(body, jsonpCallback)
		if err != nil {
			return nil, &ParseError{URL: pageURL, Detail: err.Error()}
		}

		var list videoListResponse
		if err := json.Unmarshal([]byte(payload), &list); err != nil {
			return nil, &ParseError{URL: pageURL, Detail: fmt.Sprintf("decoding listing payload: %v", err)}
		}

		added := 0
		for _, entry := range list.Data.List {
			if entry.URL == "" {
				continue
			}
			if _, ok := seen[entry.URL]; ok {
				continue
			}
			seen[entry.URL] = struct{}{}
			episodes = append(episodes, models.Episode{
				ID:      utils.HashID(entry.URL),
				Title:   entry.Title,
				Date:    entry.Time,
				PageURL: entry.URL,
			})
			added++
		}

		r.log.WithFields(logrus.Fields{
			"page":  page,
			"new":   added,
			"total": len(episodes),
		}).Info("Listing page fetched")

		if added == 0 {
			break
		}
	}

	return episodes, nil
}

// stripCallback unwraps a JSONP response body down to its JSON payload.
func stripCallback(body, callback string) (string, error) {
	s := strings.TrimSpace(body)
	if !strings.HasPrefix(s, callback+"(") {
		return "", fmt.Errorf("expected %s() callback wrapper", callback)
	}
	s = strings.TrimPrefix(s, callback+"(")
	s = strings.TrimSuffix(s, ";")
	if !strings.HasSuffix(s, ")") {
		return "", fmt.Errorf("unterminated %s() callback wrapper", callback)
	}
	return strings.TrimSuffix(s, ")"), nil
}
