package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// maxStderr bounds how much ffmpeg output is kept for error messages
const maxStderr = 2048

// FFmpeg wraps ffmpeg and ffprobe functionality
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
}

// New creates a new FFmpeg instance
func New(ffmpegPath, ffprobePath string, timeout time.Duration) *FFmpeg {
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		timeout:     timeout,
	}
}

// ValidateBinaries checks if ffmpeg and ffprobe are available
func (f *FFmpeg) ValidateBinaries() error {
	if _, err := exec.LookPath(f.ffmpegPath); err != nil {
		return fmt.Errorf("%w: %s", ErrFFmpegNotFound, f.ffmpegPath)
	}

	if _, err := exec.LookPath(f.ffprobePath); err != nil {
		return fmt.Errorf("%w: %s", ErrFFprobeNotFound, f.ffprobePath)
	}

	return nil
}

// TranscodeToMonoMP3 decodes input, downmixes it to one channel and encodes
// it as MP3 at options.Bitrate kbit/s into output, overwriting output.
func (f *FFmpeg) TranscodeToMonoMP3(ctx context.Context, input, output string, options TranscodeOptions) error {
	if options.Bitrate <= 0 {
		options.Bitrate = DefaultBitrate
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, transcodeArgs(input, output, options)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return NewProcessingError("transcode", input, err, tail(stderr.String()))
	}

	return nil
}

// transcodeArgs builds the ffmpeg command line for a mono MP3 re-encode
func transcodeArgs(input, output string, options TranscodeOptions) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
	}
	if options.InputFormat != "" {
		args = append(args, "-f", options.InputFormat)
	}
	args = append(args,
		"-i", input,
		"-vn",      // Drop cover art and video
		"-ac", "1", // Downmix to mono
		"-codec:a", "libmp3lame",
		"-b:a", fmt.Sprintf("%dk", options.Bitrate),
		"-f", "mp3",
		"-y", // Overwrite output
		output,
	)
	return args
}

// tail keeps the end of ffmpeg's stderr, where the actual error is
func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		return "..." + s[len(s)-maxStderr:]
	}
	return s
}
