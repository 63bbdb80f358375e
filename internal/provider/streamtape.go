package provider

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/katvier/naia/internal/fetch"
)

const streamtapeName = "Streamtape"

var (
	streamtapeRemovedExpr = regexp.MustCompile(`(?i)video not found|video was deleted|not found`)

	// Tried in order; the last pattern is a deliberately loose fallback.
	streamtapePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<source[^>]+src="(https?://[^"]+\.(?:mp4|mkv|webm))"`),
		regexp.MustCompile(`(?i)file\s*:\s*"(https?://[^"]+\.(?:mp4|mkv|webm))"`),
		regexp.MustCompile(`(?i)"url"\s*:\s*"(https?://[^"]+\.(?:mp4|mkv|webm))"`),
		regexp.MustCompile(`(?i)(https?://[^\s"']+\.(?:mp4|mkv|webm))`),
	}
)

type streamtapeExtractor struct {
	headers http.Header
}

func newStreamtape(headers http.Header) *streamtapeExtractor {
	return &streamtapeExtractor{headers: headers}
}

// Extract scans Streamtape's page for a direct media URL. Embed (/e/)
// pages hide the link; the video (/v/) variant of the same page carries it
// in one of a handful of known spots.
func (extractor *streamtapeExtractor) Extract(ctx context.Context, src Source, fetcher fetch.Fetcher) (*DirectLink, error) {
	body := string(src.Body)

	if strings.Contains(src.EmbedURL, "/e/") {
		res, err := fetcher.Fetch(ctx, http.MethodGet, strings.Replace(src.EmbedURL, "/e/", "/v/", 1), extractor.headers)
		if err != nil {
			return nil, err
		}

		body = string(res.Body)
	}

	if streamtapeRemovedExpr.MatchString(body) {
		return nil, newParseError(streamtapeName, "video has been removed")
	}

	for _, pattern := range streamtapePatterns {
		if match := pattern.FindStringSubmatch(body); match != nil {
			return &DirectLink{URL: normalizeStreamURL(match[1])}, nil
		}
	}

	return nil, newParseError(streamtapeName, "no direct media URL found on page")
}
