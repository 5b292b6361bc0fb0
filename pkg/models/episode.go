package models

// Channel identifies a CCTV program column and its listing page.
type Channel struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Episode is a single program entry discovered on a listing page. Manifest
// stays empty until resolution succeeds; a partially resolved URL is never
// stored.
type Episode struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Date     string `json:"date"`
	PageURL  string `json:"page_url"`
	Manifest string `json:"manifest,omitempty"`
}

// Resolved reports whether the episode carries a playable manifest URL.
func (e *Episode) Resolved() bool {
	return e.Manifest != ""
}

// DisplayTitle returns the episode title, falling back to the page URL when
// the listing entry had no title.
func (e *Episode) DisplayTitle() string {
	if e.Title != "" {
		return e.Title
	}
	return e.PageURL
}
