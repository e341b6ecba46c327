package feed

import (
	"context"
	"os"
	"strings"

	"github.com/antchfx/xmlquery"

	apperrors "github.com/killallgit/podcast-downloader/pkg/errors"
)

// RawReader walks <item> elements of a local XML file directly, without
// feed-format interpretation. Entries carry no publish date and their
// enclosure is taken as-is whatever its MIME type.
type RawReader struct{}

// NewRawReader creates an xmlquery-backed Reader.
func NewRawReader() *RawReader {
	return &RawReader{}
}

// Read requires source to be an existing local file. Items missing their
// enclosure url or title are returned and fail when resolved.
func (r *RawReader) Read(ctx context.Context, source string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(source)
	if err != nil {
		return nil, apperrors.FeedParseError(source, err)
	}
	defer file.Close()

	doc, err := xmlquery.Parse(file)
	if err != nil {
		return nil, apperrors.FeedParseError(source, err)
	}

	items := xmlquery.Find(doc, "//item")
	entries := make([]Entry, 0, len(items))
	for i, item := range items {
		entries = append(entries, rawEntry(item, i+1))
	}

	return entries, nil
}

func rawEntry(item *xmlquery.Node, position int) Entry {
	entry := Entry{Position: position, direct: true}

	enclosure := item.SelectElement("enclosure")
	if enclosure == nil {
		entry.err = apperrors.MissingElementError("enclosure", position)
		return entry
	}
	url := strings.TrimSpace(enclosure.SelectAttr("url"))
	if url == "" {
		entry.err = apperrors.MissingElementError("enclosure@url", position)
		return entry
	}
	entry.Links = []Link{{Href: url, Type: enclosure.SelectAttr("type")}}

	title := item.SelectElement("title")
	if title == nil {
		entry.err = apperrors.MissingElementError("title", position)
		return entry
	}
	entry.Title = strings.TrimSpace(title.InnerText())

	return entry
}
