package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/killallgit/podcast-downloader/pkg/download"
	apperrors "github.com/killallgit/podcast-downloader/pkg/errors"
	"github.com/killallgit/podcast-downloader/pkg/feed"
	"github.com/killallgit/podcast-downloader/pkg/naming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	title   string
	pubDate string
	url     string
	mime    string
}

func writeFeed(t *testing.T, items ...item) string {
	t.Helper()

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<rss version="2.0"><channel><title>Test Podcast</title>` + "\n")
	for _, it := range items {
		b.WriteString("<item>")
		fmt.Fprintf(&b, "<title>%s</title>", it.title)
		if it.pubDate != "" {
			fmt.Fprintf(&b, "<pubDate>%s</pubDate>", it.pubDate)
		}
		fmt.Fprintf(&b, `<enclosure url="%s" type="%s"/>`, it.url, it.mime)
		b.WriteString("</item>\n")
	}
	b.WriteString("</channel></rss>")

	path := filepath.Join(t.TempDir(), "feed.xml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

// audioServer serves body for every path except /fail, which answers 500
type audioServer struct {
	*httptest.Server
	requests atomic.Int32
}

func newAudioServer(t *testing.T, body []byte) *audioServer {
	t.Helper()
	s := &audioServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		if r.URL.Path == "/fail" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestPipeline(opts Options) *Pipeline {
	if opts.Reader == nil {
		opts.Reader = feed.NewParser(feed.ParserOptions{Timeout: 5 * time.Second})
	}
	if opts.Resolver == nil {
		opts.Resolver = naming.SlugResolver{}
	}
	if opts.Fetcher == nil {
		options := download.DefaultOptions()
		options.Timeout = 5 * time.Second
		opts.Fetcher = download.NewDownloader(options)
	}
	return New(opts)
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRun_VerbatimScenario(t *testing.T) {
	body := []byte("ID3\x03\x00 verbatim audio payload \x00\xff")
	server := newAudioServer(t, body)
	source := writeFeed(t, item{
		title:   "Episode One: A Test!",
		pubDate: "Fri, 05 Jan 2024 10:00:00 GMT",
		url:     server.URL + "/y.mp3",
		mime:    "audio/mpeg",
	})
	out := t.TempDir()

	summary, err := newTestPipeline(Options{}).Run(context.Background(), source, out)
	require.NoError(t, err)

	assert.Equal(t, &Summary{Total: 1, Downloaded: 1}, summary)
	assert.Equal(t, []string{"2024-01-05-episode-one-a-test.mp3"}, listDir(t, out))

	data, err := os.ReadFile(filepath.Join(out, "2024-01-05-episode-one-a-test.mp3"))
	require.NoError(t, err)
	assert.Equal(t, body, data)
}

func TestRun_SecondRunFetchesNothing(t *testing.T) {
	server := newAudioServer(t, []byte("audio"))
	source := writeFeed(t,
		item{"First", "Fri, 05 Jan 2024 10:00:00 GMT", server.URL + "/1.mp3", "audio/mpeg"},
		item{"Second", "Sat, 06 Jan 2024 10:00:00 GMT", server.URL + "/2.m4a", "audio/x-m4a"},
	)
	out := t.TempDir()
	p := newTestPipeline(Options{})

	summary, err := p.Run(context.Background(), source, out)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Downloaded)
	assert.Equal(t, int32(2), server.requests.Load())
	assert.ElementsMatch(t, []string{"2024-01-05-first.mp3", "2024-01-06-second.m4a"}, listDir(t, out))

	summary, err = p.Run(context.Background(), source, out)
	require.NoError(t, err)
	assert.Equal(t, &Summary{Total: 2, Skipped: 2}, summary)
	assert.Equal(t, int32(2), server.requests.Load())
}

func TestRun_ExistingFileIsNeitherFetchedNorModified(t *testing.T) {
	server := newAudioServer(t, []byte("new bytes"))
	source := writeFeed(t, item{"Kept", "Fri, 05 Jan 2024 10:00:00 GMT", server.URL + "/kept.mp3", "audio/mpeg"})
	out := t.TempDir()

	existing := filepath.Join(out, "2024-01-05-kept.mp3")
	require.NoError(t, os.WriteFile(existing, []byte("original"), 0644))
	before, err := os.Stat(existing)
	require.NoError(t, err)

	summary, err := newTestPipeline(Options{}).Run(context.Background(), source, out)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, server.requests.Load())

	after, err := os.Stat(existing)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestRun_MissingEnclosureAbortsRun(t *testing.T) {
	server := newAudioServer(t, []byte("audio"))
	source := writeFeed(t,
		item{"First", "Fri, 05 Jan 2024 10:00:00 GMT", server.URL + "/1.mp3", "audio/mpeg"},
		item{"Video", "Sat, 06 Jan 2024 10:00:00 GMT", server.URL + "/v.mp4", "video/mp4"},
		item{"Third", "Sun, 07 Jan 2024 10:00:00 GMT", server.URL + "/3.mp3", "audio/mpeg"},
	)
	out := t.TempDir()

	summary, err := newTestPipeline(Options{}).Run(context.Background(), source, out)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNoAudioEnclosure))
	assert.Equal(t, apperrors.ExitNoAudio, apperrors.ExitCode(err))

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"2024-01-05-first.mp3"}, listDir(t, out))
	assert.Equal(t, int32(1), server.requests.Load())
}

func TestRun_ContinueOnErrorIsolatesFailures(t *testing.T) {
	server := newAudioServer(t, []byte("audio"))
	source := writeFeed(t,
		item{"First", "Fri, 05 Jan 2024 10:00:00 GMT", server.URL + "/1.mp3", "audio/mpeg"},
		item{"Video", "Sat, 06 Jan 2024 10:00:00 GMT", server.URL + "/v.mp4", "video/mp4"},
		item{"Broken", "Sun, 07 Jan 2024 10:00:00 GMT", server.URL + "/fail", "audio/mpeg"},
		item{"Fourth", "Mon, 08 Jan 2024 10:00:00 GMT", server.URL + "/4.mp3", "audio/mpeg"},
	)
	out := t.TempDir()

	summary, err := newTestPipeline(Options{ContinueOnError: true}).Run(context.Background(), source, out)
	require.Error(t, err)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.Downloaded)
	assert.Equal(t, 2, summary.Failed)
	require.Len(t, summary.Errors, 2)
	assert.True(t, apperrors.Is(summary.Errors[0], apperrors.ErrCodeNoAudioEnclosure))
	assert.True(t, apperrors.Is(summary.Errors[1], apperrors.ErrCodeNetwork))
	assert.Contains(t, summary.Errors[1].Error(), `episode 3 "Broken"`)

	assert.ElementsMatch(t, []string{"2024-01-05-first.mp3", "2024-01-08-fourth.mp3"}, listDir(t, out))
}

func TestRun_NetworkFailureLeavesNoFile(t *testing.T) {
	server := newAudioServer(t, nil)
	source := writeFeed(t, item{"Broken", "Fri, 05 Jan 2024 10:00:00 GMT", server.URL + "/fail", "audio/mpeg"})
	out := t.TempDir()

	_, err := newTestPipeline(Options{}).Run(context.Background(), source, out)
	require.Error(t, err)
	assert.Equal(t, apperrors.ExitNetwork, apperrors.ExitCode(err))
	assert.Empty(t, listDir(t, out))
}

func TestRun_CancelMidDownloadLeavesNoFile(t *testing.T) {
	flushed := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		close(flushed)
		<-r.Context().Done()
	}))
	defer server.Close()

	source := writeFeed(t, item{"Slow", "Fri, 05 Jan 2024 10:00:00 GMT", server.URL + "/slow.mp3", "audio/mpeg"})
	out := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-flushed
		cancel()
	}()

	_, err := newTestPipeline(Options{}).Run(ctx, source, out)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, listDir(t, out))
}

func TestRun_RawXMLVariant(t *testing.T) {
	body := []byte("raw audio")
	server := newAudioServer(t, body)
	source := writeFeed(t, item{title: "Episode One: A Test!", url: server.URL + "/y.mp3", mime: "audio/mpeg"})
	out := t.TempDir()

	p := newTestPipeline(Options{
		Reader:   feed.NewRawReader(),
		Resolver: naming.SanitizedResolver{},
	})

	summary, err := p.Run(context.Background(), source, out)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Downloaded)

	data, err := os.ReadFile(filepath.Join(out, "Episode_One_A_Test.mp3"))
	require.NoError(t, err)
	assert.Equal(t, body, data)
}

func TestRun_RemovesStaleTempFiles(t *testing.T) {
	out := t.TempDir()
	stale := filepath.Join(out, download.TempPrefix+"old"+download.TempSuffix)
	fresh := filepath.Join(out, download.TempPrefix+"new"+download.TempSuffix)
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0600))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0600))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	source := writeFeed(t)

	summary, err := newTestPipeline(Options{StaleTempAge: 24 * time.Hour}).Run(context.Background(), source, out)
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
}

func TestRun_InvalidDestination(t *testing.T) {
	source := writeFeed(t)

	summary, err := newTestPipeline(Options{}).Run(context.Background(), source, filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeFilesystem))
}

func TestRun_UnreadableFeed(t *testing.T) {
	summary, err := newTestPipeline(Options{}).Run(context.Background(), filepath.Join(t.TempDir(), "nope.xml"), t.TempDir())
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Equal(t, apperrors.ExitFeed, apperrors.ExitCode(err))
}

type recordingTracker struct {
	started  int
	episodes []string
	finished int
	stopped  bool
}

func (r *recordingTracker) Start(total int) { r.started = total }
func (r *recordingTracker) StartEpisode(name string) download.ProgressFunc {
	r.episodes = append(r.episodes, name)
	return func(int64, int64) {}
}
func (r *recordingTracker) FinishEpisode() { r.finished++ }
func (r *recordingTracker) Stop()          { r.stopped = true }

func TestRun_AdvancesProgressPerEpisode(t *testing.T) {
	server := newAudioServer(t, []byte("audio"))
	source := writeFeed(t,
		item{"First", "Fri, 05 Jan 2024 10:00:00 GMT", server.URL + "/1.mp3", "audio/mpeg"},
		item{"Second", "Sat, 06 Jan 2024 10:00:00 GMT", server.URL + "/2.mp3", "audio/mpeg"},
	)
	out := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(out, "2024-01-06-second.mp3"), nil, 0644))

	tracker := &recordingTracker{}
	_, err := newTestPipeline(Options{Tracker: tracker}).Run(context.Background(), source, out)
	require.NoError(t, err)

	assert.Equal(t, 2, tracker.started)
	assert.Equal(t, []string{"2024-01-05-first.mp3"}, tracker.episodes)
	assert.Equal(t, 2, tracker.finished)
	assert.True(t, tracker.stopped)
}
