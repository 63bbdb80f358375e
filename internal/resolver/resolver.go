// Package resolver turns an episode reference into a directly downloadable
// media URL by walking a fallback chain of provider strategies. Any single
// provider failing (network trouble, rotted obfuscation, removed upload) is
// expected and non-fatal; only exhausting the whole chain is an error.
package resolver

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/katvier/naia/internal/fetch"
	"github.com/katvier/naia/internal/media"
	"github.com/katvier/naia/internal/provider"
	"github.com/katvier/naia/pkg/logger"
)

// ErrNoProviderAvailable indicates every candidate provider was tried and
// none produced a direct link. The per-provider causes have already been
// logged by the time this is returned.
var ErrNoProviderAvailable = errors.New("no provider could supply a direct link for this episode")

// ErrLanguageUnavailable indicates the episode page offers no stream at all
// in the requested language, from any provider.
var ErrLanguageUnavailable = errors.New("episode is not available in the requested language")

// The hoster list on an episode page is a run of li entries, each tagging a
// redirect target with the provider's name and a numeric language key.
var hosterEntryExpr = regexp.MustCompile(`(?s)<li[^>]*data-lang-key="(\d+)"[^>]*data-link-target="([^"]+)"[^>]*>.*?<h4>([^<]+)</h4>`)

// Resolver walks provider strategies against episode pages. Safe for
// concurrent use by multiple workers.
type Resolver struct {
	fetcher         fetch.Fetcher
	registry        *provider.Registry
	cache           *pageCache
	defaultProvider string

	logger logger.Logger
}

// New constructs a resolver around the given fetcher and provider registry.
// defaultProvider is consulted after the reference's own preferences; it may
// be empty.
func New(fetcher fetch.Fetcher, registry *provider.Registry, defaultProvider string) *Resolver {
	return &Resolver{
		fetcher:         fetcher,
		registry:        registry,
		cache:           newPageCache(),
		defaultProvider: defaultProvider,
		logger:          logger.Get("Resolver"),
	}
}

// Resolve produces a direct media link for the given episode reference,
// trying candidate providers in preference order until one succeeds. Each
// provider is attempted at most once per call. Context cancellation aborts
// the chain between (and inside) attempts.
func (resolver *Resolver) Resolve(ctx context.Context, ref media.EpisodeReference, preferred ...string) (*provider.DirectLink, error) {
	table, err := resolver.hosterTableFor(ctx, ref)
	if err != nil {
		return nil, err
	}

	langKey := ref.Language.Key()
	available := false
	for _, byLang := range table {
		if _, ok := byLang[langKey]; ok {
			available = true
			break
		}
	}
	if !available {
		return nil, ErrLanguageUnavailable
	}

	for _, descriptor := range resolver.candidates(ref, preferred) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		redirect, ok := table[strings.ToLower(descriptor.Name)][langKey]
		if !ok {
			resolver.logger.Emit(logger.DEBUG, "%s offers no %s stream for %v, skipping\n", descriptor.Name, ref.Language, ref)
			continue
		}

		link, err := resolver.attempt(ctx, descriptor, ref.Site.BaseURL()+redirect)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			resolver.logger.Emit(logger.WARNING, "%s failed for %v: %v\n", descriptor.Name, ref, err)
			continue
		}

		resolver.logger.Emit(logger.SUCCESS, "Resolved %v via %s\n", ref, descriptor.Name)
		return link, nil
	}

	// Exhaustion may mean the cached hoster table has gone stale; drop it
	// so a retry starts from a fresh page.
	resolver.cache.Invalidate(ref.Key())
	return nil, ErrNoProviderAvailable
}

// Invalidate drops any cached page state for the given reference.
func (resolver *Resolver) Invalidate(ref media.EpisodeReference) {
	resolver.cache.Invalidate(ref.Key())
}

// attempt runs a single provider strategy end to end: follow the site's
// redirect to the embed page, then hand the page to the strategy's decode
// pipeline.
func (resolver *Resolver) attempt(ctx context.Context, descriptor *provider.Descriptor, redirectURL string) (*provider.DirectLink, error) {
	res, err := resolver.fetcher.Fetch(ctx, http.MethodGet, redirectURL, descriptor.Headers)
	if err != nil {
		return nil, err
	}

	link, err := descriptor.Extractor.Extract(ctx, provider.Source{EmbedURL: res.FinalURL, Body: res.Body}, resolver.fetcher)
	if err != nil {
		return nil, err
	}

	link.Provider = descriptor.Name
	if link.Headers == nil {
		link.Headers = descriptor.Headers
	}

	return link, nil
}

// candidates builds the ordered, deduplicated fallback chain for one
// resolution: caller preference, then the reference's own provider, then the
// series-level provider, then the configured default, then every remaining
// registry entry in registry order.
func (resolver *Resolver) candidates(ref media.EpisodeReference, preferred []string) []*provider.Descriptor {
	names := make([]string, 0, len(preferred)+3)
	names = append(names, preferred...)
	names = append(names, ref.Provider, ref.SeriesProvider, resolver.defaultProvider)

	seen := make(map[string]bool)
	var chain []*provider.Descriptor
	appendCandidate := func(descriptor *provider.Descriptor) {
		if descriptor == nil || seen[descriptor.Name] {
			return
		}

		seen[descriptor.Name] = true
		chain = append(chain, descriptor)
	}

	for _, name := range names {
		if name == "" {
			continue
		}

		descriptor := resolver.registry.Get(name)
		if descriptor == nil {
			resolver.logger.Emit(logger.WARNING, "Ignoring unknown provider preference %q\n", name)
			continue
		}

		appendCandidate(descriptor)
	}

	for _, descriptor := range resolver.registry.Descriptors() {
		appendCandidate(descriptor)
	}

	return chain
}

// hosterTableFor returns the provider/language/redirect table for the
// reference's episode page, fetching and parsing the page on a cache miss.
func (resolver *Resolver) hosterTableFor(ctx context.Context, ref media.EpisodeReference) (hosterTable, error) {
	if table := resolver.cache.Retrieve(ref.Key()); table != nil {
		return table, nil
	}

	pageURL := ref.PageURL()
	resolver.logger.Emit(logger.DEBUG, "Fetching episode page %s\n", pageURL)
	res, err := resolver.fetcher.Fetch(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}

	table := parseHosterTable(string(res.Body))
	resolver.cache.Store(ref.Key(), table)

	return table, nil
}

// parseHosterTable scans an episode page for its hoster entries. Provider
// names are keyed lower-cased; entries whose name or language key cannot be
// parsed are dropped.
func parseHosterTable(body string) hosterTable {
	table := make(hosterTable)
	for _, match := range hosterEntryExpr.FindAllStringSubmatch(body, -1) {
		langKey, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}

		name := strings.ToLower(strings.TrimSpace(match[3]))
		if name == "" {
			continue
		}

		if table[name] == nil {
			table[name] = make(map[int]string)
		}

		table[name][langKey] = match[2]
	}

	return table
}
