package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/by-justin/cctvdownloader/internal/common/config"
)

const channelPage = `<html><head><title>新闻联播</title></head>
<body><script>var column = "TOPC1451528971114112";</script></body></html>`

func TestResolveChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, channelPage)
	}))
	defer srv.Close()

	r := newTestResolver(t, &config.ResolverConfig{})

	channel, err := r.ResolveChannel(context.Background(), srv.URL+"/lm/xwlb")
	if err != nil {
		t.Fatalf("ResolveChannel() error: %v", err)
	}

	if channel.ID != "TOPC1451528971114112" {
		t.Errorf("channel id = %q, expected TOPC1451528971114112", channel.ID)
	}
	if channel.Title != "新闻联播" {
		t.Errorf("channel title = %q, expected 新闻联播", channel.Title)
	}
}

func TestResolveChannel_NoColumnID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>redesigned page</body></html>")
	}))
	defer srv.Close()

	r := newTestResolver(t, &config.ResolverConfig{})

	_, err := r.ResolveChannel(context.Background(), srv.URL)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("ResolveChannel() error = %v, expected a ParseError", err)
	}
}

func TestListEpisodes(t *testing.T) {
	var listCalls int

	mux := http.NewServeMux()
	mux.HandleFunc("/lm/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, channelPage)
	})
	mux.HandleFunc("/api/list", func(w http.ResponseWriter, r *http.Request) {
		listCalls++
		switch r.URL.Query().Get("p") {
		case "1":
			// Duplicate entry on the same page
			fmt.Fprint(w, jsonpList(
				[2]string{"episode one", "http://site.example/ep/1"},
				[2]string{"episode two", "http://site.example/ep/2"},
				[2]string{"episode one again", "http://site.example/ep/1"},
			))
		case "2":
			// One new entry plus a repeat of page one
			fmt.Fprint(w, jsonpList(
				[2]string{"episode two", "http://site.example/ep/2"},
				[2]string{"episode three", "http://site.example/ep/3"},
			))
		default:
			fmt.Fprint(w, jsonpList())
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := newTestResolver(t, &config.ResolverConfig{
		ListingAPI: srv.URL + "/api/list",
	})

	episodes, err := r.ListEpisodes(context.Background(), srv.URL+"/lm/xwlb", 10)
	if err != nil {
		t.Fatalf("ListEpisodes() error: %v", err)
	}

	wantURLs := []string{
		"http://site.example/ep/1",
		"http://site.example/ep/2",
		"http://site.example/ep/3",
	}
	if len(episodes) != len(wantURLs) {
		t.Fatalf("ListEpisodes() returned %d episodes, expected %d", len(episodes), len(wantURLs))
	}
	for i, want := range wantURLs {
		if episodes[i].PageURL != want {
			t.Errorf("episode %d page URL = %q, expected %q (order must follow the site)", i, episodes[i].PageURL, want)
		}
		if episodes[i].Manifest != "" {
			t.Errorf("episode %d already has a manifest before resolution", i)
		}
		if episodes[i].ID == "" {
			t.Errorf("episode %d has no id", i)
		}
	}

	// Page 3 came back empty, so pagination must have stopped there
	if listCalls != 3 {
		t.Errorf("listing API was called %d times, expected 3", listCalls)
	}
}

func TestListEpisodes_PageLimitOne(t *testing.T) {
	var listCalls int

	mux := http.NewServeMux()
	mux.HandleFunc("/lm/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, channelPage)
	})
	mux.HandleFunc("/api/list", func(w http.ResponseWriter, r *http.Request) {
		listCalls++
		fmt.Fprint(w, jsonpList(
			[2]string{"episode one", "http://site.example/ep/1"},
			[2]string{"episode two", "http://site.example/ep/2"},
		))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := newTestResolver(t, &config.ResolverConfig{
		ListingAPI: srv.URL + "/api/list",
	})

	episodes, err := r.ListEpisodes(context.Background(), srv.URL+"/lm/xwlb", 1)
	if err != nil {
		t.Fatalf("ListEpisodes() error: %v", err)
	}

	if len(episodes) != 2 {
		t.Errorf("ListEpisodes() returned %d episodes, expected 2", len(episodes))
	}
	if listCalls != 1 {
		t.Errorf("listing API was called %d times with pageLimit=1, expected 1", listCalls)
	}
}

func TestListEpisodes_InvalidPageLimit(t *testing.T) {
	r := newTestResolver(t, &config.ResolverConfig{})

	if _, err := r.ListEpisodes(context.Background(), "http://site.example/lm/xwlb", 0); err == nil {
		t.Error("ListEpisodes() accepted pageLimit=0")
	}
}

func TestListEpisodes_Forbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	r := newTestResolver(t, &config.ResolverConfig{})

	_, err := r.ListEpisodes(context.Background(), srv.URL+"/lm/xwlb", 5)

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("ListEpisodes() error = %v, expected a FetchError", err)
	}
	if fetchErr.StatusCode != http.StatusForbidden {
		t.Errorf("FetchError status = %d, expected %d", fetchErr.StatusCode, http.StatusForbidden)
	}
	if fetchErr.URL == "" {
		t.Error("FetchError is missing the URL")
	}
}

func TestListEpisodes_BrokenPayload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/lm/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, channelPage)
	})
	mux.HandleFunc("/api/list", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>definitely not jsonp</html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := newTestResolver(t, &config.ResolverConfig{
		ListingAPI: srv.URL + "/api/list",
	})

	_, err := r.ListEpisodes(context.Background(), srv.URL+"/lm/xwlb", 5)

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("ListEpisodes() error = %v, expected a ParseError", err)
	}
}

func TestStripCallback(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{`lanmu_0({"data":{}});`, `{"data":{}}`, false},
		{`lanmu_0({"data":{}})`, `{"data":{}}`, false},
		{"  lanmu_0({}) \n", `{}`, false},
		{`{"data":{}}`, "", true},
		{`lanmu_0({"data":{}}`, "", true},
	}

	for _, test := range tests {
		got, err := stripCallback(test.in, "lanmu_0")
		if test.wantErr {
			if err == nil {
				t.Errorf("stripCallback(%q) expected an error, got %q", test.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("stripCallback(%q) error: %v", test.in, err)
			continue
		}
		if got != test.want {
			t.Errorf("stripCallback(%q) = %q, expected %q", test.in, got, test.want)
		}
	}
}
