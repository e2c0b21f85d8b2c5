// Package wikipedia resolves article titles to the URL of the article's lead
// image thumbnail through the MediaWiki pageimages API.
package wikipedia

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"carimages/internal/metrics"

	"github.com/antonholmquist/jason"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	DefaultEndpoint  = "https://en.wikipedia.org/w/api.php"
	DefaultThumbSize = 1280

	defaultTimeout = 30 * time.Second
)

var ErrNoThumbnail = errors.New("no thumbnail for topic")

// APIError is a structured error object returned by the API itself.
type APIError struct {
	Code string
	Info string
}

func (e *APIError) Error() string { return fmt.Sprintf("mediawiki error %s: %s", e.Code, e.Info) }

type Options struct {
	Endpoint  string
	UserAgent string
	ThumbSize int
	Timeout   time.Duration
	// Interval is the minimum spacing between two queries; 0 disables spacing.
	Interval time.Duration
	// Client overrides the HTTP client; its Timeout is left as is.
	Client  *http.Client
	Metrics *metrics.Metrics
}

// Resolver looks up topics one query at a time. Answers are memoized for the
// lifetime of the Resolver, so build a new one per batch run.
type Resolver struct {
	client    *http.Client
	endpoint  string
	userAgent string
	thumbSize int
	limiter   *rate.Limiter
	memo      *cache.Cache
	metrics   *metrics.Metrics
}

func New(opts Options) *Resolver {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	thumbSize := opts.ThumbSize
	if thumbSize <= 0 {
		thumbSize = DefaultThumbSize
	}
	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}
	return &Resolver{
		client:    client,
		endpoint:  endpoint,
		userAgent: opts.UserAgent,
		thumbSize: thumbSize,
		limiter:   rate.NewLimiter(limit, 1),
		// no janitor goroutine: entries never expire within a run
		memo:    cache.New(cache.NoExpiration, 0),
		metrics: opts.Metrics,
	}
}

// Resolve returns the thumbnail URL for topic, or ok=false when there is
// none or the query failed. The reason is logged.
func (r *Resolver) Resolve(ctx context.Context, topic string) (string, bool) {
	imageURL, err := r.Lookup(ctx, topic)
	if err != nil {
		if errors.Is(err, ErrNoThumbnail) {
			log.Info().Str("topic", topic).Msg("no image on article")
		} else {
			log.Warn().Str("topic", topic).Err(err).Msg("topic lookup failed")
		}
		return "", false
	}
	return imageURL, true
}

// ResolveAny tries topics in order and stops at the first that resolves.
func (r *Resolver) ResolveAny(ctx context.Context, topics []string) (string, bool) {
	for _, topic := range topics {
		if imageURL, ok := r.Resolve(ctx, topic); ok {
			return imageURL, true
		}
	}
	return "", false
}

// Lookup performs a single query for topic. Definite answers (a URL or
// ErrNoThumbnail) are memoized; transport failures are not.
func (r *Resolver) Lookup(ctx context.Context, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", fmt.Errorf("%w: empty topic", ErrNoThumbnail)
	}
	if cached, found := r.memo.Get(topic); found {
		if imageURL, _ := cached.(string); imageURL != "" {
			return imageURL, nil
		}
		return "", ErrNoThumbnail
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for query slot: %w", err)
	}

	imageURL, err := r.query(ctx, topic)
	switch {
	case err == nil:
		r.memo.SetDefault(topic, imageURL)
		r.metrics.ObserveResolution(true)
	case errors.Is(err, ErrNoThumbnail):
		r.memo.SetDefault(topic, "")
		r.metrics.ObserveResolution(false)
	}
	return imageURL, err
}

func (r *Resolver) queryURL(topic string) string {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("prop", "pageimages")
	params.Set("format", "json")
	params.Set("redirects", "1")
	params.Set("pithumbsize", strconv.Itoa(r.thumbSize))
	params.Set("titles", topic)
	return r.endpoint + "?" + params.Encode()
}

func (r *Resolver) query(ctx context.Context, topic string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.queryURL(topic), http.NoBody)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("query %q: %w", topic, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("query %q: http %d", topic, resp.StatusCode)
	}

	root, err := jason.NewObjectFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse response for %q: %w", topic, err)
	}
	return thumbnailFromResponse(root)
}

// thumbnailFromResponse picks the first page carrying a thumbnail. Pages come
// as an object keyed by page id (formatversion=1) or as an array
// (formatversion=2); keyed pages are visited in key order.
func thumbnailFromResponse(root *jason.Object) (string, error) {
	if apiErr, err := root.GetObject("error"); err == nil {
		code, _ := apiErr.GetString("code")
		info, _ := apiErr.GetString("info")
		return "", &APIError{Code: code, Info: info}
	}

	var pages []*jason.Object
	if list, err := root.GetObjectArray("query", "pages"); err == nil {
		pages = list
	} else {
		keyed, err := root.GetObject("query", "pages")
		if err != nil {
			return "", fmt.Errorf("%w: response has no pages", ErrNoThumbnail)
		}
		byID := keyed.Map()
		ids := make([]string, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			page, err := byID[id].Object()
			if err != nil {
				continue
			}
			pages = append(pages, page)
		}
	}

	for _, page := range pages {
		source, err := page.GetString("thumbnail", "source")
		if err != nil || source == "" {
			continue
		}
		if strings.HasPrefix(source, "//") {
			source = "https:" + source
		}
		return source, nil
	}
	return "", ErrNoThumbnail
}
