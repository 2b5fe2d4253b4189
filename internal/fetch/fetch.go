// Package fetch downloads files over HTTP with progress reporting and
// crash-safe destination handling. Data is streamed to a ".partial"
// sibling and renamed into place only once the transfer completed, so a
// destination path never holds a truncated file.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// defaultProgressInterval debounces progress callbacks.
const defaultProgressInterval = 500 * time.Millisecond

// Progress is a point-in-time transfer report. Total is 0 when the server
// did not announce a content length.
type Progress struct {
	Downloaded int64
	Total      int64
}

// ProgressFunc receives debounced transfer reports. A final call with the
// complete byte count is guaranteed on success. Panics are swallowed so a
// misbehaving observer cannot corrupt the transfer.
type ProgressFunc func(Progress)

// Options tune one Download call.
type Options struct {
	// Extra request headers, e.g. an Authorization token.
	Headers http.Header
	// Progress observer; nil disables reporting.
	Progress ProgressFunc
	// Minimum time between progress calls. Zero means the default 500ms.
	Interval time.Duration
}

// Result describes a completed download. SHA256 is computed while
// streaming, in the same pass as the file write.
type Result struct {
	Bytes  int64
	SHA256 string
}

// Fetcher performs one download at a time. A second Download while one is
// in flight fails with a busy error; use separate instances for
// concurrent transfers.
type Fetcher struct {
	client *http.Client
	log    zerolog.Logger

	mu     sync.Mutex
	busy   bool
	cancel context.CancelFunc
}

// New returns a Fetcher using client, or http.DefaultClient when nil.
func New(client *http.Client, log zerolog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, log: log}
}

// Cancel aborts the in-flight download, if any. The aborted Download call
// returns a canceled DownloadError and removes its partial file.
func (f *Fetcher) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
	}
}

// Download streams url into dest. On any failure the partial file is
// removed and dest is left untouched.
func (f *Fetcher) Download(ctx context.Context, url, dest string, opts Options) (Result, error) {
	f.mu.Lock()
	if f.busy {
		f.mu.Unlock()
		return Result{}, busyError{}
	}
	ctx, cancel := context.WithCancel(ctx)
	f.busy = true
	f.cancel = cancel
	f.mu.Unlock()

	defer func() {
		cancel()
		f.mu.Lock()
		f.busy = false
		f.cancel = nil
		f.mu.Unlock()
	}()

	res, err := f.download(ctx, url, dest, opts)
	if err != nil {
		var de *DownloadError
		if !errors.As(err, &de) {
			de = &DownloadError{URL: url, Err: err}
		}
		de.Canceled = de.Canceled || errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled
		f.log.Debug().Str("url", url).Bool("canceled", de.Canceled).Err(de.Err).Msg("download failed")
		return Result{}, de
	}
	f.log.Debug().Str("url", url).Int64("bytes", res.Bytes).Msg("download complete")
	return res, nil
}

func (f *Fetcher) download(ctx context.Context, url, dest string, opts Options) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, &DownloadError{URL: url, Err: err}
	}
	for k, vs := range opts.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, &DownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &DownloadError{URL: url, Status: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Result{}, err
	}
	partial := dest + ".partial"
	file, err := os.Create(partial)
	if err != nil {
		return Result{}, err
	}
	cleanup := func() {
		file.Close()
		_ = os.Remove(partial)
	}

	h := sha256.New()
	rep := newReporter(opts.Progress, opts.Interval, resp.ContentLength)
	n, err := io.Copy(io.MultiWriter(file, h, rep), resp.Body)
	if err != nil {
		cleanup()
		return Result{}, &DownloadError{URL: url, Err: err}
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(partial)
		return Result{}, err
	}
	if err := os.Rename(partial, dest); err != nil {
		_ = os.Remove(partial)
		return Result{}, err
	}
	rep.final()
	return Result{Bytes: n, SHA256: hex.EncodeToString(h.Sum(nil))}, nil
}

// reporter counts streamed bytes and forwards debounced progress calls.
type reporter struct {
	fn       ProgressFunc
	interval time.Duration
	total    int64
	written  int64
	lastAt   time.Time
}

func newReporter(fn ProgressFunc, interval time.Duration, contentLength int64) *reporter {
	if interval <= 0 {
		interval = defaultProgressInterval
	}
	total := contentLength
	if total < 0 {
		total = 0
	}
	return &reporter{fn: fn, interval: interval, total: total}
}

func (r *reporter) Write(p []byte) (int, error) {
	r.written += int64(len(p))
	if r.fn != nil && time.Since(r.lastAt) >= r.interval {
		r.lastAt = time.Now()
		r.emit()
	}
	return len(p), nil
}

// final reports the complete byte count; called once after a successful
// transfer.
func (r *reporter) final() {
	if r.fn != nil {
		r.emit()
	}
}

func (r *reporter) emit() {
	defer func() { _ = recover() }()
	r.fn(Progress{Downloaded: r.written, Total: r.total})
}
