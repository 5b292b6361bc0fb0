package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/by-justin/cctvdownloader/internal/common/config"
	"github.com/by-justin/cctvdownloader/pkg/models"
)

const testGUID = "00112233445566778899aabbccddeeff"

func episodePage(guid string) string {
	return fmt.Sprintf(`<html><head><title>episode</title></head>
<script type="text/javascript">
    var guid = "%s";
    var initMyDate = "20240614";
</script></html>`, guid)
}

func TestResolveManifest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ep/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, episodePage(testGUID))
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		if pid := r.URL.Query().Get("pid"); pid != testGUID {
			t.Errorf("video info API called with pid %q, expected %q", pid, testGUID)
		}
		fmt.Fprint(w, `{"hls_url":"http://hls.cdn-redirect.example/asp/hls/main.m3u8","title":"episode"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := newTestResolver(t, &config.ResolverConfig{
		VideoInfoAPI: srv.URL + "/info",
		Rewrites:     map[string]string{"cdn-redirect.example": "cdn-direct.example"},
	})

	ep := models.Episode{Title: "episode", PageURL: srv.URL + "/ep/1"}

	resolved, err := r.ResolveManifest(context.Background(), ep)
	if err != nil {
		t.Fatalf("ResolveManifest() error: %v", err)
	}

	want := "http://hls.cdn-direct.example/asp/hls/main.m3u8"
	if resolved.Manifest != want {
		t.Errorf("manifest = %q, expected %q", resolved.Manifest, want)
	}

	// Same page content must resolve to the same manifest
	again, err := r.ResolveManifest(context.Background(), ep)
	if err != nil {
		t.Fatalf("second ResolveManifest() error: %v", err)
	}
	if again.Manifest != resolved.Manifest {
		t.Errorf("resolution is not deterministic: %q then %q", resolved.Manifest, again.Manifest)
	}
}

func TestResolveManifest_NoCandidate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ep/missing", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>no player here</body></html>")
	})
	mux.HandleFunc("/ep/empty", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, episodePage(testGUID))
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"hls_url":""}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := newTestResolver(t, &config.ResolverConfig{
		VideoInfoAPI: srv.URL + "/info",
	})

	for _, path := range []string{"/ep/missing", "/ep/empty"} {
		ep := models.Episode{PageURL: srv.URL + path}

		resolved, err := r.ResolveManifest(context.Background(), ep)

		var resErr *ResolutionError
		if !errors.As(err, &resErr) {
			t.Errorf("ResolveManifest(%s) error = %v, expected a ResolutionError", path, err)
		}
		if resolved.Manifest != "" {
			t.Errorf("ResolveManifest(%s) left a manifest set on failure: %q", path, resolved.Manifest)
		}
	}
}

func TestResolveManifest_InfoAPIErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ep/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, episodePage(testGUID))
	})
	mux.HandleFunc("/info/down", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	})
	mux.HandleFunc("/info/garbled", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not json at all")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ep := models.Episode{PageURL: srv.URL + "/ep/1"}

	t.Run("unreachable", func(t *testing.T) {
		r := newTestResolver(t, &config.ResolverConfig{VideoInfoAPI: srv.URL + "/info/down"})

		_, err := r.ResolveManifest(context.Background(), ep)
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			t.Fatalf("error = %v, expected a FetchError", err)
		}
		if fetchErr.StatusCode != http.StatusInternalServerError {
			t.Errorf("FetchError status = %d, expected 500", fetchErr.StatusCode)
		}
	})

	t.Run("garbled", func(t *testing.T) {
		r := newTestResolver(t, &config.ResolverConfig{VideoInfoAPI: srv.URL + "/info/garbled"})

		_, err := r.ResolveManifest(context.Background(), ep)
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("error = %v, expected a ParseError", err)
		}
	})
}

type stubSniffer struct {
	manifest string
	err      error
}

func (s *stubSniffer) Sniff(ctx context.Context, pageURL string) (string, error) {
	return s.manifest, s.err
}

func TestResolveManifest_SnifferFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>no player here</body></html>")
	}))
	defer srv.Close()

	ep := models.Episode{PageURL: srv.URL + "/ep/1"}

	t.Run("captured manifest is rewritten", func(t *testing.T) {
		r := newTestResolver(t, &config.ResolverConfig{
			Rewrites: map[string]string{"cdn-redirect.example": "cdn-direct.example"},
		})
		r.sniffer = &stubSniffer{manifest: "http://hls.cdn-redirect.example/x.m3u8"}

		resolved, err := r.ResolveManifest(context.Background(), ep)
		if err != nil {
			t.Fatalf("ResolveManifest() error: %v", err)
		}
		want := "http://hls.cdn-direct.example/x.m3u8"
		if resolved.Manifest != want {
			t.Errorf("manifest = %q, expected %q", resolved.Manifest, want)
		}
	})

	t.Run("relative capture is rejected", func(t *testing.T) {
		r := newTestResolver(t, &config.ResolverConfig{})
		r.sniffer = &stubSniffer{manifest: "/asp/hls/main.m3u8"}

		resolved, err := r.ResolveManifest(context.Background(), ep)

		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("error = %v, expected a ParseError", err)
		}
		if resolved.Manifest != "" {
			t.Errorf("manifest set to %q despite the relative capture", resolved.Manifest)
		}
	})
}

func TestResolveManifest_RelativePageURL(t *testing.T) {
	r := newTestResolver(t, &config.ResolverConfig{})

	_, err := r.ResolveManifest(context.Background(), models.Episode{PageURL: "/ep/1"})
	if err == nil {
		t.Error("ResolveManifest() accepted a relative page URL")
	}
}
