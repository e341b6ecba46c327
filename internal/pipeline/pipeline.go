// Package pipeline walks a feed and turns each episode into a file in the
// output folder, one episode at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/killallgit/podcast-downloader/internal/progress"
	"github.com/killallgit/podcast-downloader/internal/storage"
	"github.com/killallgit/podcast-downloader/pkg/download"
	"github.com/killallgit/podcast-downloader/pkg/feed"
	"github.com/killallgit/podcast-downloader/pkg/logger"
	"github.com/killallgit/podcast-downloader/pkg/naming"
)

// Options wires the pipeline stages together
type Options struct {
	Reader   feed.Reader
	Resolver naming.Resolver
	Fetcher  Fetcher
	Writer   Writer
	Tracker  progress.Tracker
	Logger   logger.Logger

	// ContinueOnError keeps going after a failed episode and reports every
	// failure at the end instead of stopping at the first one
	ContinueOnError bool
	// StaleTempAge removes in-flight files older than this left by an
	// interrupted run; zero disables the sweep
	StaleTempAge time.Duration
}

// Pipeline is the download orchestrator
type Pipeline struct {
	reader          feed.Reader
	resolver        naming.Resolver
	fetcher         Fetcher
	writer          Writer
	tracker         progress.Tracker
	logger          logger.Logger
	continueOnError bool
	staleTempAge    time.Duration
}

// Summary describes what a run did
type Summary struct {
	Total      int
	Downloaded int
	Skipped    int
	Failed     int
	Errors     []error
}

type outcome int

const (
	outcomeDownloaded outcome = iota
	outcomeSkipped
	outcomeFailed
)

// New creates a pipeline. Reader, Resolver, Fetcher and Writer are required.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		reader:          opts.Reader,
		resolver:        opts.Resolver,
		fetcher:         opts.Fetcher,
		writer:          opts.Writer,
		tracker:         opts.Tracker,
		logger:          opts.Logger,
		continueOnError: opts.ContinueOnError,
		staleTempAge:    opts.StaleTempAge,
	}
	if p.writer == nil {
		p.writer = NewVerbatimWriter()
	}
	if p.tracker == nil {
		p.tracker = progress.Nop{}
	}
	if p.logger == nil {
		p.logger = logger.NewNop()
	}
	return p
}

// Run downloads every episode of source into destination in feed order.
// Episodes whose file already exists are skipped without any request.
// The returned error combines every episode failure; the summary is
// returned whenever the feed itself could be read.
func (p *Pipeline) Run(ctx context.Context, source, destination string) (*Summary, error) {
	output, err := storage.Open(destination)
	if err != nil {
		return nil, err
	}

	if p.staleTempAge > 0 {
		removed, err := download.CleanupOldTempFiles(output.Dir(), p.staleTempAge)
		if err != nil {
			p.logger.Warn("Failed to remove stale temp files", logger.Error(err))
		} else if removed > 0 {
			p.logger.Info("Removed stale temp files", logger.Int("count", removed))
		}
	}

	p.logger.Debug("Reading feed", logger.String("source", source))
	entries, err := p.reader.Read(ctx, source)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Total: len(entries)}
	p.logger.Info("Feed loaded",
		logger.String("source", source),
		logger.Int("episodes", len(entries)))

	p.tracker.Start(len(entries))

	var errs error
	for _, entry := range entries {
		if ctxErr := ctx.Err(); ctxErr != nil {
			errs = multierr.Append(errs, ctxErr)
			break
		}

		result, err := p.processEntry(ctx, output, entry)
		p.tracker.FinishEpisode()

		switch result {
		case outcomeDownloaded:
			summary.Downloaded++
		case outcomeSkipped:
			summary.Skipped++
		case outcomeFailed:
			err = fmt.Errorf("episode %d %q: %w", entry.Position, entry.Title, err)
			summary.Failed++
			summary.Errors = append(summary.Errors, err)
			errs = multierr.Append(errs, err)
			p.logger.Error("Episode failed",
				logger.Int("position", entry.Position),
				logger.String("title", entry.Title),
				logger.Error(err))
		}

		if result == outcomeFailed && (!p.continueOnError || ctx.Err() != nil) {
			break
		}
	}

	p.tracker.Stop()

	p.logger.Info("Run finished",
		logger.Int("total", summary.Total),
		logger.Int("downloaded", summary.Downloaded),
		logger.Int("skipped", summary.Skipped),
		logger.Int("failed", summary.Failed))

	return summary, errs
}

func (p *Pipeline) processEntry(ctx context.Context, output *storage.OutputDir, entry feed.Entry) (outcome, error) {
	episode, err := entry.Episode()
	if err != nil {
		return outcomeFailed, err
	}

	name, err := p.resolver.Resolve(episode)
	if err != nil {
		return outcomeFailed, err
	}

	log := p.logger.With(logger.String("file", name))

	exists, err := output.Exists(name)
	if err != nil {
		return outcomeFailed, err
	}
	if exists {
		log.Debug("Episode already present, skipping")
		return outcomeSkipped, nil
	}

	log.Info("Downloading episode", logger.String("url", episode.EnclosureURL))
	started := time.Now()

	result, err := p.fetcher.Download(ctx, episode.EnclosureURL, output.Dir(), p.tracker.StartEpisode(name))
	if err != nil {
		return outcomeFailed, interrupted(ctx, err)
	}

	if err := p.writer.Write(ctx, result, episode, output, name); err != nil {
		return outcomeFailed, interrupted(ctx, err)
	}

	log.Info("Episode saved",
		logger.Int64("bytes", result.ContentLength),
		logger.Duration("elapsed", time.Since(started)))

	return outcomeDownloaded, nil
}

// interrupted makes a failure caused by cancellation recognizable as such
func interrupted(ctx context.Context, err error) error {
	ctxErr := ctx.Err()
	if ctxErr == nil || errors.Is(err, ctxErr) {
		return err
	}
	return fmt.Errorf("%w: %w", ctxErr, err)
}
