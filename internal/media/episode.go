package media

import (
	"fmt"
	"strings"
)

type (
	// Site identifies which streaming site an episode reference points at.
	// The two supported sites share the same page structure, differing only
	// in their hostname and URL prefix.
	Site string

	// Language is the audio/subtitle combination the user requested for an
	// episode. The sites encode this as a numeric key on each hoster entry
	// of the episode page.
	Language string

	// EpisodeReference identifies one downloadable unit (an episode, or a
	// movie belonging to a series) along with the users language and
	// provider preferences. It is an immutable value; the scraping layer
	// produces these and the download queue consumes them.
	EpisodeReference struct {
		Site    Site
		Slug    string
		Season  int
		Episode int

		// Movie holds the 1-based movie index when this reference points at
		// a film rather than an episode. Zero for regular episodes.
		Movie int

		Language Language

		// Provider is the explicitly requested provider, if any.
		Provider string

		// SeriesProvider is the provider configured on the parent series,
		// if any. Used as a fallback when no explicit provider was given.
		SeriesProvider string

		Title string
	}
)

const (
	SiteAniworld Site = "aniworld"
	SiteSTO      Site = "s.to"
)

const (
	GermanDub  Language = "German Dub"
	EnglishSub Language = "English Sub"
	GermanSub  Language = "German Sub"
)

// invalidPathChars are stripped from titles before they are used as file
// names. See https://learn.microsoft.com/en-us/windows/win32/fileio/naming-a-file
const invalidPathChars = `<>:"/\|?*&`

// BaseURL returns the root URL for this site.
func (s Site) BaseURL() string {
	switch s {
	case SiteSTO:
		return "https://s.to"
	default:
		return "https://aniworld.to"
	}
}

// streamPrefix returns the path segment between the site root and the
// series slug.
func (s Site) streamPrefix() string {
	switch s {
	case SiteSTO:
		return "/serie/stream"
	default:
		return "/anime/stream"
	}
}

// Key returns the numeric language key used by the sites hoster list markup
// to tag each available stream. Zero is returned for unknown languages.
func (l Language) Key() int {
	switch l {
	case GermanDub:
		return 1
	case EnglishSub:
		return 2
	case GermanSub:
		return 3
	default:
		return 0
	}
}

// IsMovie reports whether this reference points at a film rather than a
// season episode.
func (ref EpisodeReference) IsMovie() bool {
	return ref.Movie > 0
}

// PageURL derives the canonical URL of the episode page this reference
// points at. The episode page is where the per-provider embed links live.
func (ref EpisodeReference) PageURL() string {
	if ref.IsMovie() {
		return fmt.Sprintf("%s%s/%s/filme/film-%d", ref.Site.BaseURL(), ref.Site.streamPrefix(), ref.Slug, ref.Movie)
	}

	return fmt.Sprintf("%s%s/%s/staffel-%d/episode-%d", ref.Site.BaseURL(), ref.Site.streamPrefix(), ref.Slug, ref.Season, ref.Episode)
}

// Key returns a stable identity for this reference, suitable for use as a
// cache key. Two references to the same episode in the same language share
// a key regardless of their provider preferences.
func (ref EpisodeReference) Key() string {
	if ref.IsMovie() {
		return fmt.Sprintf("%s/%s/film-%d/%s", ref.Site, ref.Slug, ref.Movie, ref.Language)
	}

	return fmt.Sprintf("%s/%s/s%02de%02d/%s", ref.Site, ref.Slug, ref.Season, ref.Episode, ref.Language)
}

// DisplayTitle returns the human readable title for this reference,
// deriving one from the slug if the scraping layer didn't supply one.
func (ref EpisodeReference) DisplayTitle() string {
	if ref.Title != "" {
		return ref.Title
	}

	parts := strings.Split(ref.Slug, "-")
	for i, part := range parts {
		if part != "" {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}

	return strings.Join(parts, " ")
}

// FileName derives the output file name for this reference, with any
// path-hostile characters stripped from the title.
func (ref EpisodeReference) FileName() string {
	title := ref.DisplayTitle()
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidPathChars, r) {
			return -1
		}

		return r
	}, title)
	cleaned = strings.TrimSpace(cleaned)

	if ref.IsMovie() {
		return fmt.Sprintf("%s - Film %02d.mp4", cleaned, ref.Movie)
	}

	return fmt.Sprintf("%s - S%02dE%02d.mp4", cleaned, ref.Season, ref.Episode)
}

func (ref EpisodeReference) String() string {
	if ref.IsMovie() {
		return fmt.Sprintf("EpisodeReference{%s %s film-%d lang=%s}", ref.Site, ref.Slug, ref.Movie, ref.Language)
	}

	return fmt.Sprintf("EpisodeReference{%s %s s%02de%02d lang=%s}", ref.Site, ref.Slug, ref.Season, ref.Episode, ref.Language)
}
