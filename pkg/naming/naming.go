// Package naming derives deterministic, filesystem-safe output filenames
// for episodes.
package naming

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/gosimple/unidecode"

	apperrors "github.com/killallgit/podcast-downloader/pkg/errors"
	"github.com/killallgit/podcast-downloader/pkg/feed"
)

// DateLayout formats the publish date prefix so names sort chronologically.
const DateLayout = "2006-01-02"

// TranscodedExtension is used for every transcoded output.
const TranscodedExtension = ".mp3"

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)
	unsafeFilename  = regexp.MustCompile(`[^A-Za-z0-9_.\-]`)
)

// Resolver maps an episode to a filename relative to the output directory.
type Resolver interface {
	Resolve(episode feed.Episode) (string, error)
}

// SlugResolver produces {date}-{slug}{ext}.
type SlugResolver struct {
	// Transcode forces the .mp3 extension
	Transcode bool
}

// Resolve implements Resolver.
func (r SlugResolver) Resolve(episode feed.Episode) (string, error) {
	if episode.Published.IsZero() {
		return "", apperrors.NamingError(episode.Title, "episode has no publish date")
	}

	slug := Slugify(episode.Title)
	if slug == "" {
		return "", apperrors.NamingError(episode.Title, "title yields an empty filename")
	}

	return episode.Published.UTC().Format(DateLayout) + "-" + slug + extension(episode, r.Transcode), nil
}

// SanitizedResolver produces {sanitized-title}{ext}.
type SanitizedResolver struct {
	// Transcode forces the .mp3 extension
	Transcode bool
}

// Resolve implements Resolver.
func (r SanitizedResolver) Resolve(episode feed.Episode) (string, error) {
	name := Sanitize(episode.Title)
	if name == "" || strings.Trim(name, ".") == "" {
		return "", apperrors.NamingError(episode.Title, "title yields an empty filename")
	}
	return name + extension(episode, r.Transcode), nil
}

// extension keeps the enclosure's own suffix unless the audio is re-encoded
func extension(episode feed.Episode, transcode bool) string {
	if transcode {
		return TranscodedExtension
	}
	return Extension(episode.EnclosureURL)
}

// Slugify transliterates s to ASCII, lowercases it and joins the remaining
// alphanumeric runs with hyphens. "Новости дня" becomes "novosti-dnia".
func Slugify(s string) string {
	s = unidecode.Unidecode(s)
	s = strings.ToLower(s)
	s = nonAlphanumeric.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Sanitize replaces spaces with underscores and drops every character
// outside [A-Za-z0-9_.-].
func Sanitize(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "_")
	return unsafeFilename.ReplaceAllString(s, "")
}

// Extension returns the suffix of the URL path, including the dot, with
// query and fragment ignored. Returns "" when the path has none.
func Extension(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	ext := path.Ext(p)
	if ext == "." {
		return ""
	}
	return ext
}
