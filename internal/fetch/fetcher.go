package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	fileutil "carimages/internal/file"
	"carimages/internal/metrics"

	"github.com/rs/zerolog/log"
)

const (
	defaultHTTPTimeout       = 60 * time.Second
	defaultMaxBytes    int64 = 50 << 20
)

// Options configures a Fetcher. Zero values fall back to defaults.
type Options struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBytes     int64
	VerifyImages bool
	// Client overrides the HTTP client; its Timeout is left as is.
	Client  *http.Client
	Metrics *metrics.Metrics
}

// Fetcher downloads one URL into one file.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	verify    bool
	metrics   *metrics.Metrics
}

func NewFetcher(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Fetcher{
		client:    client,
		userAgent: opts.UserAgent,
		maxBytes:  maxBytes,
		verify:    opts.VerifyImages,
		metrics:   opts.Metrics,
	}
}

// FetchAndSave downloads rawURL and writes it to target when the payload is
// larger than minBytes. It returns true iff the file was written. Failures are
// logged here and never returned.
func (f *Fetcher) FetchAndSave(ctx context.Context, rawURL, target string, minBytes int64) bool {
	written, err := f.Save(ctx, rawURL, target, minBytes)
	if err != nil {
		log.Warn().Str("url", rawURL).Str("file", target).Err(err).Msg("image download failed")
		return false
	}
	return written > 0
}

// Save is FetchAndSave with the failure reason. On any error target is left
// exactly as it was.
func (f *Fetcher) Save(ctx context.Context, rawURL, target string, minBytes int64) (int64, error) {
	started := time.Now()
	body, err := f.get(ctx, strings.TrimSpace(rawURL))
	if err != nil {
		f.metrics.ObserveFetch(time.Since(started), 0)
		return 0, err
	}
	size := int64(len(body))
	if size <= minBytes {
		f.metrics.ObserveFetch(time.Since(started), 0)
		return 0, fmt.Errorf("%w: %d bytes (need more than %d)", ErrTooSmall, size, minBytes)
	}
	if f.verify {
		if err := verifyImage(body); err != nil {
			f.metrics.ObserveFetch(time.Since(started), 0)
			return 0, err
		}
	}
	if err := fileutil.WriteAtomic(target, bytes.NewReader(body)); err != nil {
		f.metrics.ObserveFetch(time.Since(started), 0)
		return 0, &StorageError{Path: target, Err: err}
	}
	f.metrics.ObserveFetch(time.Since(started), size)
	return size, nil
}

// get reads the whole response body into memory.
func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	httpResponse, err := f.client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}
	defer func() { _ = httpResponse.Body.Close() }()

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
		return nil, &TransportError{URL: rawURL, StatusCode: httpResponse.StatusCode}
	}
	if httpResponse.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: content-length %d exceeds %d", ErrTooLarge, httpResponse.ContentLength, f.maxBytes)
	}

	body, err := io.ReadAll(io.LimitReader(httpResponse.Body, f.maxBytes+1))
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}
	return body, nil
}
