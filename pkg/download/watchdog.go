package download

import (
	"io"
	"time"
)

// watchdog fires callback unless kicked within interval
type watchdog struct {
	interval time.Duration
	timer    *time.Timer
}

func newWatchDog(interval time.Duration, callback func()) *watchdog {
	return &watchdog{
		interval: interval,
		timer:    time.AfterFunc(interval, callback),
	}
}

func (w *watchdog) Stop() {
	w.timer.Stop()
}

func (w *watchdog) Kick() {
	w.timer.Stop()
	w.timer.Reset(w.interval)
}

// kickingReader kicks the watchdog on every successful read
type kickingReader struct {
	reader io.Reader
	wd     *watchdog
}

func (kr *kickingReader) Read(p []byte) (int, error) {
	n, err := kr.reader.Read(p)
	if n > 0 {
		kr.wd.Kick()
	}
	return n, err
}
