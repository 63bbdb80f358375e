package provider

import (
	"context"
	"regexp"

	"github.com/katvier/naia/internal/fetch"
)

const vidozaName = "Vidoza"

var (
	vidozaSourcesExpr = regexp.MustCompile(`(?s)sourcesCode\s*:\s*\[\s*\{\s*src\s*:\s*"([^"]+)"`)
	vidozaSourceTag   = regexp.MustCompile(`<source\s+src="([^"]+)"[^>]*type=["']video/mp4["']`)
)

type vidozaExtractor struct{}

// Extract pulls the MP4 source out of Vidoza's player setup. Newer pages
// carry a sourcesCode array, older ones a plain <source> tag.
func (vidozaExtractor) Extract(_ context.Context, src Source, _ fetch.Fetcher) (*DirectLink, error) {
	body := string(src.Body)

	if match := vidozaSourcesExpr.FindStringSubmatch(body); match != nil {
		return &DirectLink{URL: normalizeStreamURL(match[1])}, nil
	}

	if match := vidozaSourceTag.FindStringSubmatch(body); match != nil {
		return &DirectLink{URL: normalizeStreamURL(match[1])}, nil
	}

	return nil, newParseError(vidozaName, "player setup exposes no mp4 source")
}
