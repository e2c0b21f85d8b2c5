package run

import (
	"context"
	"fmt"

	"carimages/internal/catalog"
	"carimages/internal/config"
	"carimages/internal/fetch"
	"carimages/internal/metrics"
	"carimages/internal/wikipedia"

	"github.com/rs/zerolog/log"
)

// CatalogLoader returns every available catalog sorted by name.
type CatalogLoader func() ([]catalog.Catalog, error)

// BatchFunc fetches the images of the given catalogs in order. progress, when
// non-nil, receives every task outcome as it happens.
type BatchFunc func(ctx context.Context, catalogs []catalog.Catalog, progress func(fetch.Outcome)) (fetch.Result, error)

// DirCatalogs loads catalogs from dir on every call.
func DirCatalogs(dir string, allowedExt []string) CatalogLoader {
	return func() ([]catalog.Catalog, error) {
		return catalog.LoadDir(dir, allowedExt)
	}
}

// NewBatch wires the fetcher, the topic resolver and the runner from cfg.
// Every call of the returned func gets a fresh resolver, so topic answers are
// memoized for one batch only.
func NewBatch(cfg config.Config, m *metrics.Metrics) BatchFunc {
	fetcher := fetch.NewFetcher(fetch.Options{
		UserAgent:    cfg.UserAgent,
		Timeout:      cfg.Fetch.Timeout,
		MaxBytes:     cfg.MaxBytes,
		VerifyImages: cfg.VerifyImages,
		Metrics:      m,
	})

	return func(ctx context.Context, catalogs []catalog.Catalog, progress func(fetch.Outcome)) (fetch.Result, error) {
		resolver := wikipedia.New(wikipedia.Options{
			Endpoint:  cfg.Lookup.Endpoint,
			UserAgent: cfg.UserAgent,
			ThumbSize: cfg.Lookup.ThumbSize,
			Timeout:   cfg.Lookup.Timeout,
			Interval:  cfg.Lookup.Interval,
			Metrics:   m,
		})
		runner := fetch.NewRunner(fetch.RunnerOptions{
			Fetcher:     fetcher,
			Resolver:    resolver,
			DirectDelay: cfg.Delays.Direct,
			LookupDelay: cfg.Delays.Lookup,
			Metrics:     m,
			OnOutcome:   progress,
		})
		return RunCatalogs(ctx, runner, catalogs, cfg.OutputDir, cfg.MinBytes)
	}
}

// RunCatalogs runs each catalog's tasks with its own size threshold and merges
// the results. The pause owed by the last task of one catalog is taken before
// the next one starts. It stops at the first error, returning what was done so
// far.
func RunCatalogs(ctx context.Context, runner *fetch.Runner, catalogs []catalog.Catalog, outputDir string, minBytes int64) (fetch.Result, error) {
	var total fetch.Result
	for i, c := range catalogs {
		if i > 0 {
			if err := runner.Settle(ctx, total); err != nil {
				return total, fmt.Errorf("catalog %s: %w", c.Name, err)
			}
		}
		log.Info().Str("catalog", c.Name).Int("images", len(c.Images)).Msg("catalog started")
		res, err := runner.Run(ctx, c.Tasks(outputDir), c.EffectiveMinBytes(minBytes))
		total.Merge(res)
		if err != nil {
			return total, fmt.Errorf("catalog %s: %w", c.Name, err)
		}
	}
	return total, nil
}
