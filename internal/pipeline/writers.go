package pipeline

import (
	"context"

	"github.com/killallgit/podcast-downloader/internal/storage"
	"github.com/killallgit/podcast-downloader/pkg/download"
	apperrors "github.com/killallgit/podcast-downloader/pkg/errors"
	"github.com/killallgit/podcast-downloader/pkg/feed"
	"github.com/killallgit/podcast-downloader/pkg/ffmpeg"
	"github.com/killallgit/podcast-downloader/pkg/logger"
	"github.com/killallgit/podcast-downloader/pkg/naming"
)

// VerbatimWriter stores the fetched bytes unchanged
type VerbatimWriter struct{}

// NewVerbatimWriter creates a writer that keeps the original encoding
func NewVerbatimWriter() *VerbatimWriter {
	return &VerbatimWriter{}
}

func (w *VerbatimWriter) Write(ctx context.Context, src *download.DownloadResult, episode feed.Episode, output *storage.OutputDir, name string) error {
	if err := ctx.Err(); err != nil {
		_ = download.CleanupTempFile(src.FilePath)
		return err
	}
	_, err := output.Commit(src.FilePath, name)
	return err
}

// TranscodeWriter re-encodes the fetched audio to mono MP3
type TranscodeWriter struct {
	transcoder Transcoder
	options    ffmpeg.TranscodeOptions
	logger     logger.Logger
}

// NewTranscodeWriter creates a writer that downmixes and re-encodes at options.Bitrate
func NewTranscodeWriter(transcoder Transcoder, options ffmpeg.TranscodeOptions, log logger.Logger) *TranscodeWriter {
	if log == nil {
		log = logger.NewNop()
	}
	if options.Bitrate <= 0 {
		options.Bitrate = ffmpeg.DefaultBitrate
	}
	return &TranscodeWriter{
		transcoder: transcoder,
		options:    options,
		logger:     log,
	}
}

// Write probes the source with the demuxer implied by the URL extension,
// transcodes into a temp file inside output and renames it onto name.
func (w *TranscodeWriter) Write(ctx context.Context, src *download.DownloadResult, episode feed.Episode, output *storage.OutputDir, name string) error {
	defer download.CleanupTempFile(src.FilePath)

	options := w.options
	options.InputFormat = ffmpeg.FormatForExtension(naming.Extension(src.URL))

	metadata, err := w.transcoder.ValidateAudioFile(ctx, src.FilePath, options.InputFormat)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return apperrors.DecodeError(episode.EnclosureURL, err)
	}

	w.logger.Debug("Transcoding episode",
		logger.String("title", episode.Title),
		logger.String("codec", metadata.Codec),
		logger.Int("channels", metadata.Channels),
		logger.Int("sample_rate", metadata.SampleRate),
		logger.Int("bitrate_kbps", options.Bitrate))

	tmp, err := output.CreateTemp()
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		_ = download.CleanupTempFile(tmpPath)
		return apperrors.FilesystemError("close", tmpPath, err)
	}

	if err := w.transcoder.TranscodeToMonoMP3(ctx, src.FilePath, tmpPath, options); err != nil {
		_ = download.CleanupTempFile(tmpPath)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return apperrors.DecodeError(episode.EnclosureURL, err)
	}

	_, err = output.Commit(tmpPath, name)
	return err
}
