package provider

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/katvier/naia/internal/fetch"
)

const (
	doodstreamName        = "Doodstream"
	doodstreamDefaultHost = "dood.li"

	tokenCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var doodstreamMD5Expr = regexp.MustCompile(`/pass_md5/[\w-/]+`)

type doodstreamExtractor struct {
	host    string
	headers http.Header
}

func newDoodstream(host string, headers http.Header) *doodstreamExtractor {
	if host == "" {
		host = doodstreamDefaultHost
	}

	return &doodstreamExtractor{host: host, headers: headers}
}

// Extract performs Doodstream's two-stage handshake: the embed page names a
// pass_md5 endpoint which, fetched with the right referer, returns the base
// of the stream URL. The final URL appends a random tail plus the token and
// expiry parameters the CDN checks.
func (extractor *doodstreamExtractor) Extract(ctx context.Context, src Source, fetcher fetch.Fetcher) (*DirectLink, error) {
	match := doodstreamMD5Expr.FindString(string(src.Body))
	if match == "" {
		return nil, newParseError(doodstreamName, "embed page names no pass_md5 endpoint")
	}

	segments := strings.Split(strings.Trim(match, "/"), "/")
	token := segments[len(segments)-1]

	host := extractor.host
	if parsed, err := url.Parse(src.EmbedURL); err == nil && parsed.Host != "" {
		host = parsed.Host
	}

	headers := extractor.headers.Clone()
	if headers == nil {
		headers = make(http.Header)
	}
	headers.Set("Referer", fmt.Sprintf("https://%s/", host))

	res, err := fetcher.Fetch(ctx, http.MethodGet, fmt.Sprintf("https://%s%s", host, match), headers)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSpace(string(res.Body))
	if !strings.HasPrefix(base, "http") {
		return nil, newParseError(doodstreamName, "pass_md5 endpoint returned no stream base")
	}

	streamURL := fmt.Sprintf("%s%s?token=%s&expiry=%d", base, randomTail(10), token, time.Now().UnixMilli())
	return &DirectLink{URL: streamURL}, nil
}

func randomTail(length int) string {
	var builder strings.Builder
	for i := 0; i < length; i++ {
		builder.WriteByte(tokenCharset[rand.Intn(len(tokenCharset))])
	}

	return builder.String()
}
