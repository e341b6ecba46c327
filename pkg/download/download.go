package download

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	apperrors "github.com/killallgit/podcast-downloader/pkg/errors"
)

// TempPrefix and TempSuffix mark in-flight files inside the output directory.
// They never match a resolved episode filename.
const (
	TempPrefix = ".poddl-"
	TempSuffix = ".part"
)

// DownloadOptions configures the download behavior
type DownloadOptions struct {
	MaxSize       int64         // Maximum file size in bytes (0 = no limit)
	Timeout       time.Duration // Bound on connecting, waiting for headers, and each stall while reading the body
	ProgressFunc  ProgressFunc  // Optional progress callback
	UserAgent     string        // User agent string
	ValidateAudio bool          // Validate content-type is audio
}

// ProgressFunc is called during download to report progress. total is -1
// when the server sent no Content-Length.
type ProgressFunc func(downloaded, total int64)

// DefaultOptions returns default download options
func DefaultOptions() DownloadOptions {
	return DownloadOptions{
		Timeout:   30 * time.Second,
		UserAgent: "podcast-downloader/1.0",
	}
}

// DownloadResult contains information about a successful download
type DownloadResult struct {
	FilePath      string // Path to the temp file holding the body
	URL           string // Source URL
	ContentType   string // Content-Type from response
	ContentLength int64  // Size in bytes
}

// Downloader fetches episode audio into temp files
type Downloader struct {
	client  *http.Client
	options DownloadOptions
}

// NewDownloader creates a new downloader with the given options
func NewDownloader(options DownloadOptions) *Downloader {
	return &Downloader{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   options.Timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          10,
				IdleConnTimeout:       30 * time.Second,
				DisableCompression:    true, // Don't compress audio
				TLSHandshakeTimeout:   options.Timeout,
				ResponseHeaderTimeout: options.Timeout,
			},
		},
		options: options,
	}
}

// Download performs a single GET of url and stores the body in a temp file
// inside dir. The caller owns the returned file and must commit or remove it.
// Any failure removes the temp file and returns a NETWORK or FILESYSTEM error.
// progress overrides DownloadOptions.ProgressFunc for this call when non-nil.
func (d *Downloader) Download(ctx context.Context, url string, dir string, progress ProgressFunc) (*DownloadResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.NetworkError(url, fmt.Errorf("failed to create request: %w", err))
	}

	if d.options.UserAgent != "" {
		req.Header.Set("User-Agent", d.options.UserAgent)
	}
	req.Header.Set("Accept", "audio/*,*/*")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, apperrors.NetworkError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.StatusError(url, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if d.options.ValidateAudio && !isAudioContentType(contentType) {
		return nil, apperrors.NetworkError(url, fmt.Errorf("invalid content type: %s", contentType))
	}

	contentLength := resp.ContentLength
	if d.options.MaxSize > 0 && contentLength > d.options.MaxSize {
		return nil, apperrors.NetworkError(url, fmt.Errorf("file too large: %d bytes (max %d)", contentLength, d.options.MaxSize))
	}

	tempFile, err := CreateTempFile(dir)
	if err != nil {
		return nil, err
	}
	tempPath := tempFile.Name()

	if progress == nil {
		progress = d.options.ProgressFunc
	}
	var body io.Reader = resp.Body
	var stalled atomic.Bool
	if d.options.Timeout > 0 {
		wd := newWatchDog(d.options.Timeout, func() {
			stalled.Store(true)
			cancel()
		})
		defer wd.Stop()
		body = &kickingReader{reader: resp.Body, wd: wd}
	}

	dst := &trackingWriter{w: tempFile}
	written, err := d.downloadToFile(body, dst, contentLength, progress)
	if dst.err != nil {
		_ = tempFile.Close()
		_ = CleanupTempFile(tempPath)
		return nil, apperrors.FilesystemError("write", tempPath, dst.err)
	}
	if err != nil && stalled.Load() {
		err = fmt.Errorf("no data received for %s: %w", d.options.Timeout, err)
	}
	if closeErr := tempFile.Close(); err == nil && closeErr != nil {
		_ = CleanupTempFile(tempPath)
		return nil, apperrors.FilesystemError("close", tempPath, closeErr)
	}
	if err != nil {
		_ = CleanupTempFile(tempPath)
		return nil, apperrors.NetworkError(url, fmt.Errorf("failed to read body: %w", err))
	}

	return &DownloadResult{
		FilePath:      tempPath,
		URL:           url,
		ContentType:   contentType,
		ContentLength: written,
	}, nil
}

// CreateTempFile creates a hidden in-flight file in dir
func CreateTempFile(dir string) (*os.File, error) {
	f, err := os.CreateTemp(dir, TempPrefix+"*"+TempSuffix)
	if err != nil {
		return nil, apperrors.FilesystemError("create temp file in", dir, err)
	}
	return f, nil
}

// downloadToFile copies the body to file with optional progress tracking
func (d *Downloader) downloadToFile(src io.Reader, dst io.Writer, totalSize int64, progress ProgressFunc) (int64, error) {
	reader := src
	if progress != nil {
		reader = &progressReader{
			reader:   src,
			total:    totalSize,
			callback: progress,
		}
	}

	if d.options.MaxSize > 0 {
		// One extra byte tells an oversize body apart from an exact fit
		limited := &io.LimitedReader{R: reader, N: d.options.MaxSize + 1}
		written, err := io.Copy(dst, limited)
		if err == nil && written > d.options.MaxSize {
			err = fmt.Errorf("file too large: more than %d bytes", d.options.MaxSize)
		}
		return written, err
	}

	return io.Copy(dst, reader)
}

// CleanupTempFile removes a temporary file
func CleanupTempFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// CleanupOldTempFiles removes in-flight files older than maxAge that a
// killed run left behind in dir. It returns how many were removed.
func CleanupOldTempFiles(dir string, maxAge time.Duration) (int, error) {
	pattern := filepath.Join(dir, TempPrefix+"*"+TempSuffix)
	files, err := filepath.Glob(pattern)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	var removed int

	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			if err := os.Remove(file); err == nil {
				removed++
			}
		}
	}

	return removed, nil
}

// isAudioContentType checks if content type is audio
func isAudioContentType(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return strings.HasPrefix(contentType, "audio/") ||
		strings.HasPrefix(contentType, "application/octet-stream") // Some hosts use this for audio
}

// trackingWriter remembers write failures so they are not reported as
// network errors
type trackingWriter struct {
	w   io.Writer
	err error
}

func (tw *trackingWriter) Write(p []byte) (int, error) {
	n, err := tw.w.Write(p)
	if err != nil {
		tw.err = err
	}
	return n, err
}

// progressReader wraps a reader to report progress
type progressReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	callback   ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.downloaded += int64(n)
		pr.callback(pr.downloaded, pr.total)
	}
	return n, err
}
