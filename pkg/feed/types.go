// Package feed reads podcast feeds into ordered episode records.
package feed

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/killallgit/podcast-downloader/pkg/errors"
)

// Episode is one feed entry resolved to a single audio enclosure.
type Episode struct {
	Title        string
	Published    time.Time // zero when the feed carries no date (raw XML)
	EnclosureURL string
	MimeType     string
	Position     int // 1-based position in the feed
}

// Link is a candidate enclosure of a feed entry.
type Link struct {
	Href string
	Type string
}

// Entry is one feed item as read, before it is resolved to an Episode.
// Resolution is per entry so a bad item fails at its own turn in feed order.
type Entry struct {
	Title     string
	Published time.Time
	Links     []Link
	Position  int

	direct bool  // the single link is the enclosure, no MIME filtering
	err    error // structural problem found while reading the item
}

// Episode resolves the entry to its audio enclosure.
func (e Entry) Episode() (Episode, error) {
	if e.err != nil {
		return Episode{}, e.err
	}

	var link Link
	if e.direct && len(e.Links) == 1 {
		link = e.Links[0]
	} else {
		selected, err := SelectEnclosure(e.Title, e.Links)
		if err != nil {
			return Episode{}, err
		}
		link = selected
	}

	return Episode{
		Title:        e.Title,
		Published:    e.Published,
		EnclosureURL: link.Href,
		MimeType:     link.Type,
		Position:     e.Position,
	}, nil
}

// Reader turns a feed source into entries, preserving feed order.
type Reader interface {
	Read(ctx context.Context, source string) ([]Entry, error)
}

// SelectEnclosure picks the link to download among an entry's links.
// The last link whose MIME type contains "audio" wins.
func SelectEnclosure(title string, links []Link) (Link, error) {
	for i := len(links) - 1; i >= 0; i-- {
		if strings.Contains(strings.ToLower(links[i].Type), "audio") && links[i].Href != "" {
			return links[i], nil
		}
	}
	return Link{}, apperrors.NoAudioEnclosureError(title)
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
