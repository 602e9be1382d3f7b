package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tmm-manager/tmm/pkg/config"
	"github.com/tmm-manager/tmm/pkg/errors"
	"github.com/tmm-manager/tmm/pkg/logging"
	"github.com/tmm-manager/tmm/pkg/utils"
)

// Events carries optional progress callbacks. Nil fields are skipped.
type Events struct {
	// OnHeaders fires once with the response headers of the probe
	// request.
	OnHeaders func(header http.Header)

	// OnContentLength fires when the total size is known, before any
	// body bytes are written.
	OnContentLength func(length int64)

	// OnProgress fires after each write with the cumulative byte
	// count. total is -1 when the server did not report a length.
	OnProgress func(written, total int64)

	// OnRetry fires when a chunk fails and is requeued.
	OnRetry func(start, end int64, attempt int)

	// OnFinish fires after the file is renamed into place.
	OnFinish func()
}

// Result describes a completed download.
type Result struct {
	Path     string
	Bytes    int64
	Checksum string

	// Chunked reports whether the ranged concurrent path was used.
	Chunked bool
}

// Downloader fetches files per its configuration. It is safe for
// concurrent use.
type Downloader struct {
	client *http.Client
	cfg    config.DownloadConfig
}

// New builds a downloader from config. Zero or negative settings
// fall back to safe minimums.
func New(cfg config.DownloadConfig) *Downloader {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = 1 << 20
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &Downloader{
		client: &http.Client{Timeout: timeout},
		cfg:    cfg,
	}
}

// Download fetches rawURL into destPath. The destination's parent
// directory is created as needed. events may be nil.
func (d *Downloader) Download(ctx context.Context, rawURL, destPath string, events *Events) (*Result, error) {
	logger := logging.GetLogger("download")
	if events == nil {
		events = &Events{}
	}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, errors.Newf(errors.ErrInvalidInput, "invalid download URL %q", rawURL)
	}

	resp, err := d.get(ctx, rawURL, "")
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrDownloadFailed, "request to %s failed", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Newf(errors.ErrDownloadFailed,
			"server returned %s for %s", resp.Status, rawURL)
	}

	if events.OnHeaders != nil {
		events.OnHeaders(resp.Header)
	}

	length := resp.ContentLength
	if length > 0 && events.OnContentLength != nil {
		events.OnContentLength(length)
	}

	supportsRanges := resp.Header.Get("Accept-Ranges") == "bytes" && length > 0

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrDirCreate,
			"cannot create download directory for %s", destPath)
	}

	partPath := destPath + ".part"
	result := &Result{Path: destPath}

	chunked := supportsRanges && d.cfg.Workers > 1 && length > d.cfg.ChunkSize
	logger.Debug().Str("url", rawURL).Int64("length", length).
		Bool("chunked", chunked).Msg("Starting download")

	if chunked {
		// The probe body is abandoned; chunks re-request their own
		// byte ranges.
		resp.Body.Close()
		if err := d.downloadChunked(ctx, rawURL, partPath, length, events); err != nil {
			os.Remove(partPath)
			return nil, err
		}
		result.Chunked = true
		result.Bytes = length
	} else {
		written, err := d.streamBody(ctx, resp.Body, partPath, length, events)
		if err != nil {
			os.Remove(partPath)
			return nil, err
		}
		result.Bytes = written
	}

	if err := os.Rename(partPath, destPath); err != nil {
		os.Remove(partPath)
		return nil, errors.Wrapf(err, errors.ErrFileCreate,
			"cannot finalize download at %s", destPath)
	}

	sum, err := utils.CalculateFileChecksum(destPath)
	if err != nil {
		return nil, err
	}
	result.Checksum = sum

	if events.OnFinish != nil {
		events.OnFinish()
	}
	logger.Info().Str("path", destPath).Int64("bytes", result.Bytes).
		Bool("chunked", result.Chunked).Msg("Download complete")
	return result, nil
}

func (d *Downloader) get(ctx context.Context, rawURL, byteRange string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	req.Header.Set("Accept", "*/*")
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
	}
	return d.client.Do(req)
}

// streamBody writes body sequentially to partPath.
func (d *Downloader) streamBody(ctx context.Context, body io.Reader, partPath string, total int64, events *Events) (int64, error) {
	f, err := os.Create(partPath)
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrFileCreate, "cannot create %s", partPath)
	}
	defer f.Close()

	if total <= 0 {
		total = -1
	}

	buf := make([]byte, d.cfg.ChunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, errors.Wrap(err, errors.ErrDownloadFailed, "download cancelled")
		}
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return written, errors.Wrapf(err, errors.ErrFileCreate, "write to %s failed", partPath)
			}
			written += int64(n)
			if events.OnProgress != nil {
				events.OnProgress(written, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return written, errors.Wrap(readErr, errors.ErrDownloadFailed, "reading response body failed")
		}
	}

	if total > 0 && written != total {
		return written, errors.Newf(errors.ErrDownloadFailed,
			"short download: got %d of %d bytes", written, total)
	}
	if err := f.Sync(); err != nil {
		return written, errors.Wrapf(err, errors.ErrFileCreate, "sync of %s failed", partPath)
	}
	return written, nil
}

type chunk struct {
	start, end int64 // inclusive byte range
	attempt    int
}

// downloadChunked fetches [0, length) as ranged chunks on a worker
// pool, writing each at its offset. Failed chunks are retried up to
// MaxRetries times before the whole download fails.
func (d *Downloader) downloadChunked(ctx context.Context, rawURL, partPath string, length int64, events *Events) error {
	f, err := os.Create(partPath)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileCreate, "cannot create %s", partPath)
	}
	defer f.Close()
	if err := f.Truncate(length); err != nil {
		return errors.Wrapf(err, errors.ErrFileCreate, "cannot presize %s", partPath)
	}

	chunks := chunkRanges(length, d.cfg.ChunkSize)

	jobs := make(chan chunk, len(chunks))
	for _, c := range chunks {
		jobs <- c
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		written   atomic.Int64
		remaining atomic.Int64
		mu        sync.Mutex
		firstErr  error
		wg        sync.WaitGroup
	)
	remaining.Store(int64(len(chunks)))

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		cancel()
	}

	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case c, ok := <-jobs:
					if !ok {
						return
					}
					n, err := d.fetchChunk(ctx, rawURL, f, c)
					if err != nil {
						if ctx.Err() != nil {
							return
						}
						if c.attempt >= d.cfg.MaxRetries {
							fail(errors.Wrapf(err, errors.ErrDownloadFailed,
								"chunk %d-%d failed after %d retries", c.start, c.end, c.attempt))
							return
						}
						if events.OnRetry != nil {
							events.OnRetry(c.start, c.end, c.attempt+1)
						}
						jobs <- chunk{start: c.start, end: c.end, attempt: c.attempt + 1}
						continue
					}
					total := written.Add(n)
					if events.OnProgress != nil {
						events.OnProgress(total, length)
					}
					if remaining.Add(-1) == 0 {
						close(jobs)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrDownloadFailed, "download cancelled")
	}
	if got := written.Load(); got != length {
		return errors.Newf(errors.ErrDownloadFailed,
			"short download: got %d of %d bytes", got, length)
	}
	if err := f.Sync(); err != nil {
		return errors.Wrapf(err, errors.ErrFileCreate, "sync of %s failed", partPath)
	}
	return nil
}

// fetchChunk downloads one byte range and writes it at its offset.
func (d *Downloader) fetchChunk(ctx context.Context, rawURL string, f *os.File, c chunk) (int64, error) {
	resp, err := d.get(ctx, rawURL, fmt.Sprintf("bytes=%d-%d", c.start, c.end))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("expected 206 Partial Content, got %s", resp.Status)
	}

	want := c.end - c.start + 1
	data, err := io.ReadAll(io.LimitReader(resp.Body, want))
	if err != nil {
		return 0, err
	}
	if int64(len(data)) != want {
		return 0, fmt.Errorf("short chunk: got %d of %d bytes", len(data), want)
	}
	if _, err := f.WriteAt(data, c.start); err != nil {
		return 0, err
	}
	return want, nil
}

// chunkRanges splits [0, length) into inclusive byte ranges of at
// most chunkSize bytes.
func chunkRanges(length, chunkSize int64) []chunk {
	var out []chunk
	for start := int64(0); start < length; start += chunkSize {
		end := start + chunkSize - 1
		if end >= length {
			end = length - 1
		}
		out = append(out, chunk{start: start, end: end})
	}
	return out
}
