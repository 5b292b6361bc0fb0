package models

import "testing"

func TestEpisode_DisplayTitle(t *testing.T) {
	tests := []struct {
		title    string
		pageURL  string
		expected string
	}{
		{"Evening News", "http://site.example/ep/1", "Evening News"},
		{"", "http://site.example/ep/1", "http://site.example/ep/1"},
	}

	for _, test := range tests {
		ep := &Episode{Title: test.title, PageURL: test.pageURL}
		if got := ep.DisplayTitle(); got != test.expected {
			t.Errorf("DisplayTitle() with title=%q = %q, expected %q", test.title, got, test.expected)
		}
	}
}

func TestEpisode_Resolved(t *testing.T) {
	ep := &Episode{PageURL: "http://site.example/ep/1"}
	if ep.Resolved() {
		t.Error("Resolved() true before resolution")
	}

	ep.Manifest = "http://hls.example/x.m3u8"
	if !ep.Resolved() {
		t.Error("Resolved() false after resolution")
	}
}
