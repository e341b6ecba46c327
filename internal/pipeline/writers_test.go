package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/killallgit/podcast-downloader/internal/storage"
	"github.com/killallgit/podcast-downloader/pkg/download"
	apperrors "github.com/killallgit/podcast-downloader/pkg/errors"
	"github.com/killallgit/podcast-downloader/pkg/feed"
	"github.com/killallgit/podcast-downloader/pkg/ffmpeg"
	"github.com/killallgit/podcast-downloader/pkg/naming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTranscoder writes "MONO:" followed by the input bytes
type fakeTranscoder struct {
	probeErr     error
	transcodeErr error
	probedFormat string
	options      ffmpeg.TranscodeOptions
	calls        int
}

func (f *fakeTranscoder) ValidateAudioFile(ctx context.Context, filePath string, inputFormat string) (*ffmpeg.AudioMetadata, error) {
	f.probedFormat = inputFormat
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	return &ffmpeg.AudioMetadata{Codec: "aac", Channels: 2, SampleRate: 44100}, nil
}

func (f *fakeTranscoder) TranscodeToMonoMP3(ctx context.Context, input, output string, options ffmpeg.TranscodeOptions) error {
	f.calls++
	f.options = options
	if f.transcodeErr != nil {
		// ffmpeg leaves a truncated output behind on failure
		_ = os.WriteFile(output, []byte("trunc"), 0644)
		return f.transcodeErr
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	return os.WriteFile(output, append([]byte("MONO:"), data...), 0644)
}

func openOutput(t *testing.T) *storage.OutputDir {
	t.Helper()
	out, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	return out
}

func fetched(t *testing.T, out *storage.OutputDir, url string, body string) *download.DownloadResult {
	t.Helper()
	tmp, err := out.CreateTemp()
	require.NoError(t, err)
	_, err = tmp.WriteString(body)
	require.NoError(t, err)
	require.NoError(t, tmp.Close())
	return &download.DownloadResult{FilePath: tmp.Name(), URL: url, ContentLength: int64(len(body))}
}

func TestVerbatimWriter(t *testing.T) {
	out := openOutput(t)
	src := fetched(t, out, "https://x/y.mp3", "exact bytes")

	err := NewVerbatimWriter().Write(context.Background(), src, feed.Episode{Title: "Episode"}, out, "episode.mp3")
	require.NoError(t, err)

	data, err := os.ReadFile(out.Path("episode.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "exact bytes", string(data))
	assert.Equal(t, []string{"episode.mp3"}, listDir(t, out.Dir()))
}

func TestVerbatimWriter_CanceledRemovesTemp(t *testing.T) {
	out := openOutput(t)
	src := fetched(t, out, "https://x/y.mp3", "bytes")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewVerbatimWriter().Write(ctx, src, feed.Episode{}, out, "episode.mp3")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, listDir(t, out.Dir()))
}

func TestVerbatimWriter_KeepsExistingFile(t *testing.T) {
	out := openOutput(t)
	require.NoError(t, os.WriteFile(out.Path("episode.mp3"), []byte("original"), 0644))
	src := fetched(t, out, "https://x/y.mp3", "newer bytes")

	err := NewVerbatimWriter().Write(context.Background(), src, feed.Episode{}, out, "episode.mp3")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeFilesystem))

	data, err := os.ReadFile(out.Path("episode.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
	assert.Equal(t, []string{"episode.mp3"}, listDir(t, out.Dir()))
}

func TestTranscodeWriter(t *testing.T) {
	out := openOutput(t)
	src := fetched(t, out, "https://x/show/ep.m4a?token=abc", "aac payload")
	transcoder := &fakeTranscoder{}

	writer := NewTranscodeWriter(transcoder, ffmpeg.TranscodeOptions{Bitrate: 64}, nil)
	err := writer.Write(context.Background(), src, feed.Episode{Title: "Ep"}, out, "2024-01-05-ep.mp3")
	require.NoError(t, err)

	assert.Equal(t, "mov", transcoder.probedFormat)
	assert.Equal(t, "mov", transcoder.options.InputFormat)
	assert.Equal(t, 64, transcoder.options.Bitrate)

	data, err := os.ReadFile(out.Path("2024-01-05-ep.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "MONO:aac payload", string(data))
	assert.Equal(t, []string{"2024-01-05-ep.mp3"}, listDir(t, out.Dir()))
}

func TestTranscodeWriter_DefaultBitrate(t *testing.T) {
	writer := NewTranscodeWriter(&fakeTranscoder{}, ffmpeg.TranscodeOptions{}, nil)
	assert.Equal(t, ffmpeg.DefaultBitrate, writer.options.Bitrate)
}

func TestTranscodeWriter_Failures(t *testing.T) {
	tests := []struct {
		name       string
		transcoder *fakeTranscoder
		wantCalls  int
	}{
		{
			name:       "undecodable input",
			transcoder: &fakeTranscoder{probeErr: ffmpeg.NewProcessingError("metadata_extraction", "in", ffmpeg.ErrInvalidAudioFile, "")},
			wantCalls:  0,
		},
		{
			name:       "encoder failure",
			transcoder: &fakeTranscoder{transcodeErr: errors.New("exit status 1")},
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := openOutput(t)
			src := fetched(t, out, "https://x/y.mp3", "garbage")

			writer := NewTranscodeWriter(tt.transcoder, ffmpeg.TranscodeOptions{}, nil)
			err := writer.Write(context.Background(), src, feed.Episode{EnclosureURL: "https://x/y.mp3"}, out, "y.mp3")
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrCodeDecode))
			assert.Equal(t, apperrors.ExitDecode, apperrors.ExitCode(err))
			assert.Equal(t, tt.wantCalls, tt.transcoder.calls)
			assert.Empty(t, listDir(t, out.Dir()))
		})
	}
}

func TestRun_TranscodeProducesMP3Name(t *testing.T) {
	server := newAudioServer(t, []byte("m4a bytes"))
	source := writeFeed(t, item{"Episode One: A Test!", "Fri, 05 Jan 2024 10:00:00 GMT", server.URL + "/y.m4a", "audio/x-m4a"})
	out := t.TempDir()
	transcoder := &fakeTranscoder{}

	options := download.DefaultOptions()
	options.Timeout = 5 * time.Second
	p := New(Options{
		Reader:   feed.NewParser(feed.ParserOptions{Timeout: 5 * time.Second}),
		Resolver: naming.SlugResolver{Transcode: true},
		Fetcher:  download.NewDownloader(options),
		Writer:   NewTranscodeWriter(transcoder, ffmpeg.TranscodeOptions{}, nil),
	})

	summary, err := p.Run(context.Background(), source, out)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, []string{"2024-01-05-episode-one-a-test.mp3"}, listDir(t, out))
	assert.Equal(t, ffmpeg.DefaultBitrate, transcoder.options.Bitrate)

	data, err := os.ReadFile(filepath.Join(out, "2024-01-05-episode-one-a-test.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "MONO:m4a bytes", string(data))
}

func TestRun_RawXMLKeepsEnclosureExtension(t *testing.T) {
	server := newAudioServer(t, []byte("M4A-BYTES"))
	source := writeFeed(t, item{"My Show", "Fri, 05 Jan 2024 10:00:00 GMT", server.URL + "/ep.m4a", "audio/x-m4a"})
	out := t.TempDir()

	options := download.DefaultOptions()
	options.Timeout = 5 * time.Second
	p := New(Options{
		Reader:   feed.NewRawReader(),
		Resolver: naming.SanitizedResolver{},
		Fetcher:  download.NewDownloader(options),
		Writer:   NewVerbatimWriter(),
	})

	summary, err := p.Run(context.Background(), source, out)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, []string{"My_Show.m4a"}, listDir(t, out))

	data, err := os.ReadFile(filepath.Join(out, "My_Show.m4a"))
	require.NoError(t, err)
	assert.Equal(t, "M4A-BYTES", string(data))
}
