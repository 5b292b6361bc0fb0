package resolver

import "fmt"

// FetchError reports a network or HTTP-level failure reaching a page or
// manifest host. StatusCode is zero when the request never got a response.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports page markup or an API payload that no longer matches the
// structure the resolver expects. When this shows up the site layout changed.
type ParseError struct {
	URL    string
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.URL, e.Detail)
}

// ResolutionError reports an episode page that was reachable and parseable
// but contains no manifest candidate at all. Terminal for that episode only.
type ResolutionError struct {
	PageURL string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("no manifest candidate found in %s", e.PageURL)
}
