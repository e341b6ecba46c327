// Package progress renders per-run and per-episode progress indicators.
package progress

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/killallgit/podcast-downloader/pkg/download"
)

// Tracker receives pipeline progress. Calls come from a single goroutine.
type Tracker interface {
	// Start announces how many episodes the run will walk through
	Start(total int)
	// StartEpisode returns the byte-progress callback for one fetch
	StartEpisode(name string) download.ProgressFunc
	// FinishEpisode advances the episode counter, whether the episode was
	// fetched, skipped or failed
	FinishEpisode()
	// Stop flushes and releases the display
	Stop()
}

// Auto returns terminal progress bars on out when enabled and out is a
// terminal, and a Nop tracker otherwise.
func Auto(enabled bool, out *os.File) Tracker {
	if !enabled || out == nil {
		return Nop{}
	}
	if !isatty.IsTerminal(out.Fd()) && !isatty.IsCygwinTerminal(out.Fd()) {
		return Nop{}
	}
	return NewBars(out)
}

// Nop discards progress.
type Nop struct{}

func (Nop) Start(int)                                 {}
func (Nop) StartEpisode(string) download.ProgressFunc { return nil }
func (Nop) FinishEpisode()                            {}
func (Nop) Stop()                                     {}

// Bars draws an episode counter plus a transient byte bar per download.
type Bars struct {
	out      io.Writer
	progress *mpb.Progress
	episodes *mpb.Bar
	current  *mpb.Bar
}

// NewBars creates a Tracker drawing to out.
func NewBars(out io.Writer) *Bars {
	return &Bars{out: out}
}

func (b *Bars) Start(total int) {
	b.progress = mpb.New(mpb.WithOutput(b.out), mpb.WithWidth(40))
	b.episodes = b.progress.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name("episodes", decor.WC{C: decor.DindentRight | decor.DextraSpace}),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
		),
	)
}

func (b *Bars) StartEpisode(name string) download.ProgressFunc {
	if b.progress == nil {
		return nil
	}
	b.finishCurrent()

	bar := b.progress.AddBar(0,
		mpb.BarRemoveOnComplete(),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{C: decor.DindentRight | decor.DextraSpace}),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f"),
			decor.Name(" "),
			decor.AverageSpeed(decor.SizeB1024(0), "% .1f"),
		),
	)
	b.current = bar

	totalSet := false
	return func(downloaded, total int64) {
		if !totalSet && total > 0 {
			bar.SetTotal(total, false)
			totalSet = true
		}
		bar.SetCurrent(downloaded)
	}
}

func (b *Bars) FinishEpisode() {
	if b.progress == nil {
		return
	}
	b.finishCurrent()
	b.episodes.Increment()
}

func (b *Bars) Stop() {
	if b.progress == nil {
		return
	}
	b.finishCurrent()
	if !b.episodes.Completed() {
		b.episodes.Abort(false)
	}
	b.progress.Wait()
	b.progress = nil
}

func (b *Bars) finishCurrent() {
	if b.current == nil {
		return
	}
	if !b.current.Completed() {
		b.current.SetTotal(-1, true)
	}
	b.current = nil
}
