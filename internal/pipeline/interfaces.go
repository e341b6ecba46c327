package pipeline

import (
	"context"

	"github.com/killallgit/podcast-downloader/internal/storage"
	"github.com/killallgit/podcast-downloader/pkg/download"
	"github.com/killallgit/podcast-downloader/pkg/feed"
	"github.com/killallgit/podcast-downloader/pkg/ffmpeg"
)

// Fetcher retrieves an episode body into a temp file inside dir
type Fetcher interface {
	Download(ctx context.Context, url string, dir string, progress download.ProgressFunc) (*download.DownloadResult, error)
}

// Writer turns a fetched body into the file name inside output.
// It owns src.FilePath and removes it whatever the outcome.
type Writer interface {
	Write(ctx context.Context, src *download.DownloadResult, episode feed.Episode, output *storage.OutputDir, name string) error
}

// Transcoder is the subset of ffmpeg the transcoding writer relies on
type Transcoder interface {
	ValidateAudioFile(ctx context.Context, filePath string, inputFormat string) (*ffmpeg.AudioMetadata, error)
	TranscodeToMonoMP3(ctx context.Context, input, output string, options ffmpeg.TranscodeOptions) error
}
