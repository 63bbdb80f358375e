// Package provider contains the static registry of streaming providers and
// the per-provider decode pipelines which turn a fetched embed page into a
// directly fetchable media URL.
//
// Each pipeline is a reverse-engineering of a third-party hosts obfuscation
// and may rot independently of the rest of the system; they all share one
// shape (transform chain ending in a structured parse) and one contract
// (Extractor), so a broken or new provider only ever touches its own file.
package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/katvier/naia/internal/fetch"
)

type (
	// Source is the fetched embed page an extractor operates on. EmbedURL
	// is the final URL after redirects, which pipelines needing follow-up
	// requests use to recover the hosts origin.
	Source struct {
		EmbedURL string
		Body     []byte
	}

	// Extractor is the single capability a provider strategy implements:
	// turn a fetched embed page into a direct media URL. Implementations
	// may issue follow-up requests through the supplied fetcher.
	Extractor interface {
		Extract(ctx context.Context, src Source, fetcher fetch.Fetcher) (*DirectLink, error)
	}

	// Descriptor binds a provider identifier to its extraction strategy
	// and the request headers the host demands. Immutable once registered.
	Descriptor struct {
		Name      string
		Headers   http.Header
		Extractor Extractor
	}

	// DirectLink is the product of a successful resolution attempt: a
	// directly fetchable media URL, the provider which produced it, and
	// the headers the download engine must send to be allowed in.
	DirectLink struct {
		URL      string
		Provider string
		Headers  http.Header
	}

	// ParseError indicates a decode pipeline ran but produced no usable
	// URL (missing marker, malformed payload, empty source list). The
	// resolver treats it exactly like a network failure: log and move on
	// to the next candidate.
	ParseError struct {
		Provider string
		Reason   string
	}
)

func (err *ParseError) Error() string {
	return fmt.Sprintf("%s page could not be decoded: %s", err.Provider, err.Reason)
}

func newParseError(provider string, format string, interpolations ...interface{}) *ParseError {
	return &ParseError{Provider: provider, Reason: fmt.Sprintf(format, interpolations...)}
}

func headersFor(pairs ...[2]string) http.Header {
	headers := make(http.Header, len(pairs))
	for _, pair := range pairs {
		headers.Set(pair[0], pair[1])
	}

	return headers
}
