package provider

import (
	"fmt"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/mitchellh/mapstructure"
)

// DoodstreamOptions tunes the Doodstream strategy.
type DoodstreamOptions struct {
	// Host names the mirror used for the pass_md5 handshake when the embed
	// URL itself carries no usable host.
	Host string `mapstructure:"host"`
}

// LuluvdoOptions tunes the Luluvdo strategy.
type LuluvdoOptions struct {
	// UserAgent overrides the mobile user agent presented to the dl endpoint.
	UserAgent string `mapstructure:"user_agent"`
}

// Registry is the fixed, ordered set of provider strategies known to the
// resolver. Order is significant: it is the tail of every fallback chain.
type Registry struct {
	descriptors []*Descriptor
	similarity  *metrics.JaroWinkler
}

// NewRegistry constructs the full strategy set. The options map is keyed by
// lower-cased provider name and carries per-provider tuning decoded into the
// matching options struct; unknown keys are ignored.
func NewRegistry(options map[string]map[string]any) (*Registry, error) {
	var doodstream DoodstreamOptions
	if err := decodeOptions(options, "doodstream", &doodstream); err != nil {
		return nil, err
	}

	luluvdo := LuluvdoOptions{UserAgent: luluvdoUserAgent}
	if err := decodeOptions(options, "luluvdo", &luluvdo); err != nil {
		return nil, err
	}

	luluvdoHeaders := headersFor(
		[2]string{"User-Agent", luluvdo.UserAgent},
		[2]string{"Accept-Language", "de,en-US;q=0.7,en;q=0.3"},
		[2]string{"Origin", "https://luluvdo.com"},
		[2]string{"Referer", "https://luluvdo.com/"},
	)

	return &Registry{
		descriptors: []*Descriptor{
			{Name: voeName, Extractor: newVOE(nil)},
			{Name: doodstreamName, Headers: headersFor([2]string{"Referer", "https://dood.li/"}), Extractor: newDoodstream(doodstream.Host, nil)},
			{Name: vidozaName, Extractor: vidozaExtractor{}},
			{Name: speedfilesName, Extractor: speedfilesExtractor{}},
			{Name: vidmolyName, Headers: headersFor([2]string{"Referer", "https://vidmoly.net"}), Extractor: vidmolyExtractor{}},
			{Name: luluvdoName, Headers: luluvdoHeaders, Extractor: newLuluvdo(luluvdoHeaders)},
			{Name: streamtapeName, Extractor: newStreamtape(nil)},
		},
		similarity: metrics.NewJaroWinkler(),
	}, nil
}

// Descriptors returns the strategies in registry order.
func (registry *Registry) Descriptors() []*Descriptor {
	return registry.descriptors
}

// Names returns the provider names in registry order.
func (registry *Registry) Names() []string {
	names := make([]string, len(registry.descriptors))
	for i, descriptor := range registry.descriptors {
		names[i] = descriptor.Name
	}

	return names
}

// Get finds a strategy by name, case-insensitively. A near-miss (a typo'd
// configuration value, or a hoster label with decoration around the name)
// still resolves when it is similar enough to exactly one known provider.
func (registry *Registry) Get(name string) *Descriptor {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil
	}

	for _, descriptor := range registry.descriptors {
		if strings.ToLower(descriptor.Name) == needle {
			return descriptor
		}
	}

	var best *Descriptor
	bestScore := 0.0
	for _, descriptor := range registry.descriptors {
		score := strutil.Similarity(needle, strings.ToLower(descriptor.Name), registry.similarity)
		if score > bestScore {
			best, bestScore = descriptor, score
		}
	}

	if bestScore >= 0.9 {
		return best
	}

	return nil
}

func decodeOptions(options map[string]map[string]any, key string, target any) error {
	raw, ok := options[key]
	if !ok {
		return nil
	}

	if err := mapstructure.Decode(raw, target); err != nil {
		return fmt.Errorf("provider options for %s are malformed: %w", key, err)
	}

	return nil
}
