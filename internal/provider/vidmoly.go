package provider

import (
	"context"

	"github.com/katvier/naia/internal/fetch"
)

const vidmolyName = "Vidmoly"

type vidmolyExtractor struct{}

// Extract reads the stream list straight out of Vidmoly's player setup
// block, applying the quality rule when multiple labelled sources exist.
func (vidmolyExtractor) Extract(_ context.Context, src Source, _ fetch.Fetcher) (*DirectLink, error) {
	candidates := jwplayerSources(string(src.Body))
	best := selectBest(candidates)
	if best == nil {
		return nil, newParseError(vidmolyName, "player setup exposes no sources")
	}

	return &DirectLink{URL: best.URL}, nil
}
