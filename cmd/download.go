package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/killallgit/podcast-downloader/internal/pipeline"
	"github.com/killallgit/podcast-downloader/internal/progress"
	"github.com/killallgit/podcast-downloader/pkg/config"
	"github.com/killallgit/podcast-downloader/pkg/download"
	apperrors "github.com/killallgit/podcast-downloader/pkg/errors"
	"github.com/killallgit/podcast-downloader/pkg/feed"
	"github.com/killallgit/podcast-downloader/pkg/ffmpeg"
	"github.com/killallgit/podcast-downloader/pkg/logger"
	"github.com/killallgit/podcast-downloader/pkg/naming"
)

func runDownload(cmd *cobra.Command, v *viper.Viper, args []string) error {
	v.Set("source", args[0])
	v.Set("destination", args[1])
	if noProgress, _ := cmd.Flags().GetBool("no-progress"); noProgress {
		v.Set("run.progress", false)
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	tracker := progress.Auto(cfg.Run.Progress, os.Stderr)
	_, drawing := tracker.(*progress.Bars)

	log, err := logger.New(logger.Config{
		Level: effectiveLogLevel(cfg.Logging.Level, drawing),
		JSON:  cfg.Logging.JSON,
	})
	if err != nil {
		return apperrors.ConfigError("logging.level", err.Error())
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(cfg, log, tracker)
	if err != nil {
		return err
	}

	summary, err := p.Run(ctx, cfg.Source, cfg.Destination)
	if summary != nil {
		printSummary(cmd.OutOrStdout(), summary)
	}
	return err
}

// buildPipeline wires the stages selected by cfg
func buildPipeline(cfg *config.Config, log logger.Logger, tracker progress.Tracker) (*pipeline.Pipeline, error) {
	var reader feed.Reader
	var resolver naming.Resolver
	if cfg.Feed.RawXML {
		reader = feed.NewRawReader()
		resolver = naming.SanitizedResolver{Transcode: cfg.Transcode.Enabled}
	} else {
		reader = feed.NewParser(feed.ParserOptions{
			Timeout:   cfg.Feed.Timeout,
			UserAgent: cfg.Feed.UserAgent,
		})
		resolver = naming.SlugResolver{Transcode: cfg.Transcode.Enabled}
	}

	downloader := download.NewDownloader(download.DownloadOptions{
		Timeout:       cfg.Download.Timeout,
		UserAgent:     cfg.Download.UserAgent,
		MaxSize:       cfg.Download.MaxSize,
		ValidateAudio: cfg.Download.ValidateAudio,
	})

	var writer pipeline.Writer = pipeline.NewVerbatimWriter()
	if cfg.Transcode.Enabled {
		ff := ffmpeg.New(cfg.Transcode.FFmpegPath, cfg.Transcode.FFprobePath, cfg.Transcode.Timeout)
		if err := ff.ValidateBinaries(); err != nil {
			return nil, apperrors.ConfigError("transcode.ffmpeg_path", err.Error()).WithCause(err)
		}
		writer = pipeline.NewTranscodeWriter(ff, ffmpeg.TranscodeOptions{Bitrate: cfg.Transcode.Bitrate}, log)
	}

	log.Debug("Pipeline configured",
		logger.Bool("raw_xml", cfg.Feed.RawXML),
		logger.Bool("transcode", cfg.Transcode.Enabled),
		logger.Int("bitrate_kbps", cfg.Transcode.Bitrate),
		logger.Duration("timeout", cfg.Download.Timeout),
		logger.Bool("continue_on_error", cfg.Run.ContinueOnError))

	return pipeline.New(pipeline.Options{
		Reader:          reader,
		Resolver:        resolver,
		Fetcher:         downloader,
		Writer:          writer,
		Tracker:         tracker,
		Logger:          log,
		ContinueOnError: cfg.Run.ContinueOnError,
		StaleTempAge:    cfg.Download.StaleTempAge,
	}), nil
}

// effectiveLogLevel quiets per-episode info lines while progress bars own
// the terminal, since both write to stderr. Debug and the quieter levels
// pass through unchanged.
func effectiveLogLevel(level string, drawing bool) string {
	if !drawing {
		return level
	}
	parsed, err := logger.ParseLevel(level)
	if err != nil || parsed != zapcore.InfoLevel {
		return level
	}
	return "warn"
}

func printSummary(out io.Writer, summary *pipeline.Summary) {
	fmt.Fprintf(out, "%d episodes: %d downloaded, %d skipped, %d failed\n",
		summary.Total, summary.Downloaded, summary.Skipped, summary.Failed)
}
