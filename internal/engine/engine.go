// Package engine wraps the external download engine. The engine owns
// everything past the manifest URL: segment fetching, retries, muxing. This
// package only knows how to invoke it and read back its format listing.
package engine

import "context"

// Task describes one manifest for the engine to fetch and save.
type Task struct {
	ManifestURL     string
	Format          string
	OutputPath      string
	FragmentThreads int
}

// Engine is the fetch-and-save capability the batch driver hands resolved
// episodes to.
type Engine interface {
	// Formats probes the available format identifiers for a URL, in the
	// engine's declared order (worst first).
	Formats(ctx context.Context, url string) ([]string, error)

	// Download fetches the task's manifest and writes the muxed result to
	// the task's output path.
	Download(ctx context.Context, task Task) error
}
