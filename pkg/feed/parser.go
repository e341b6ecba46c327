package feed

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/mmcdole/gofeed"

	apperrors "github.com/killallgit/podcast-downloader/pkg/errors"
)

// ParserOptions configures the RSS/Atom reader.
type ParserOptions struct {
	Timeout   time.Duration // bound on fetching a remote feed
	UserAgent string
}

// Parser reads RSS and Atom feeds from a URL or a local path.
type Parser struct {
	options ParserOptions
	client  *http.Client
}

// NewParser creates a gofeed-backed Reader.
func NewParser(options ParserOptions) *Parser {
	return &Parser{
		options: options,
		client:  &http.Client{Timeout: options.Timeout},
	}
}

// Read parses the whole feed. Entries lacking an audio enclosure or a
// publish date are returned too and fail when resolved.
func (p *Parser) Read(ctx context.Context, source string) ([]Entry, error) {
	parsed, err := p.parse(ctx, source)
	if err != nil {
		return nil, apperrors.FeedParseError(source, err)
	}

	entries := make([]Entry, 0, len(parsed.Items))
	for i, item := range parsed.Items {
		entries = append(entries, toEntry(item, i+1))
	}

	return entries, nil
}

func (p *Parser) parse(ctx context.Context, source string) (*gofeed.Feed, error) {
	fp := gofeed.NewParser()
	fp.Client = p.client
	if p.options.UserAgent != "" {
		fp.UserAgent = p.options.UserAgent
	}

	if isURL(source) {
		return fp.ParseURLWithContext(source, ctx)
	}

	file, err := os.Open(source)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return fp.Parse(file)
}

func toEntry(item *gofeed.Item, position int) Entry {
	entry := Entry{
		Title:    item.Title,
		Position: position,
		Links:    make([]Link, 0, len(item.Enclosures)),
	}

	for _, enclosure := range item.Enclosures {
		if enclosure == nil {
			continue
		}
		entry.Links = append(entry.Links, Link{Href: enclosure.URL, Type: enclosure.Type})
	}

	published := item.PublishedParsed
	if published == nil {
		published = item.UpdatedParsed
	}
	if published == nil {
		entry.err = apperrors.MissingElementError("published", position).
			WithDetail("title", item.Title)
		return entry
	}
	entry.Published = *published

	return entry
}
