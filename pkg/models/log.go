package models

// Stats represents the running totals of a scraping batch.
type Stats struct {
	EpisodesFound    int `json:"episodes_found"`
	EpisodesResolved int `json:"episodes_resolved"`
	VideosDownloaded int `json:"videos_downloaded"`
}

// ResolveLog is a progress message published by the scraper service.
type ResolveLog struct {
	Status string   `json:"status"`
	Error  string   `json:"error,omitempty"`
	Data   *Episode `json:"data,omitempty"`
	Stats  *Stats   `json:"stats,omitempty"`
}

// DownloadLog is a progress message published by the downloader service.
type DownloadLog struct {
	Status string  `json:"status"`
	Error  string  `json:"error,omitempty"`
	Data   Episode `json:"data"`
}
