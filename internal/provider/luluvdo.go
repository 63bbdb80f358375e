package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/katvier/naia/internal/fetch"
)

const (
	luluvdoName        = "Luluvdo"
	luluvdoDefaultHost = "luluvdo.com"

	// Luluvdo only serves its player to mobile user agents.
	luluvdoUserAgent = "Mozilla/5.0 (Android 15; Mobile; rv:132.0) Gecko/132.0 Firefox/132.0"
)

type luluvdoExtractor struct {
	headers http.Header
}

func newLuluvdo(headers http.Header) *luluvdoExtractor {
	return &luluvdoExtractor{headers: headers}
}

// Extract derives the file code from the embed URL, requests the matching
// player document from Luluvdo's dl endpoint, and reads the stream list
// out of its player setup.
func (extractor *luluvdoExtractor) Extract(ctx context.Context, src Source, fetcher fetch.Fetcher) (*DirectLink, error) {
	host := luluvdoDefaultHost
	fileCode := ""
	if parsed, err := url.Parse(src.EmbedURL); err == nil {
		if parsed.Host != "" {
			host = parsed.Host
		}

		segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
		fileCode = segments[len(segments)-1]
	}

	if fileCode == "" {
		return nil, newParseError(luluvdoName, "embed URL carries no file code")
	}

	playerURL := fmt.Sprintf("https://%s/dl?op=embed&file_code=%s&embed=1&referer=%s&adb=0", host, fileCode, host)
	res, err := fetcher.Fetch(ctx, http.MethodGet, playerURL, extractor.headers)
	if err != nil {
		return nil, err
	}

	best := selectBest(jwplayerSources(string(res.Body)))
	if best == nil {
		return nil, newParseError(luluvdoName, "player document exposes no sources")
	}

	return &DirectLink{URL: best.URL}, nil
}
