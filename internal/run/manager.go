package run

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"carimages/internal/archive"
	"carimages/internal/catalog"
	"carimages/internal/fetch"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ArchiveBuilder packs local files into a zip at destZipPath.
type ArchiveBuilder func(ctx context.Context, destZipPath string, files []string) ([]archive.Result, error)

// Manager keeps runs in memory, persists them, and executes at most one at a time.
type Manager struct {
	mu           sync.RWMutex
	runs         map[string]*Run
	outputDir    string
	minBytes     int64
	catalogs     CatalogLoader
	batch        BatchFunc
	semaphore    chan struct{}
	buildArchive ArchiveBuilder
	workersWG    sync.WaitGroup
	baseCtx      context.Context
	store        *Store
}

func NewManager(opts Options) *Manager {
	catalogs := opts.Catalogs
	if catalogs == nil {
		catalogs = func() ([]catalog.Catalog, error) { return nil, nil }
	}
	return &Manager{
		runs:         make(map[string]*Run),
		outputDir:    opts.OutputDir,
		minBytes:     opts.MinBytes,
		catalogs:     catalogs,
		batch:        opts.Batch,
		semaphore:    make(chan struct{}, 1),
		buildArchive: archive.BuildArchive,
		baseCtx:      context.Background(),
		store:        NewStore(opts.DataDir),
	}
}

// IsBusy reports whether a run is currently being processed.
func (m *Manager) IsBusy() bool {
	return len(m.semaphore) >= cap(m.semaphore)
}

// Catalogs lists the available catalogs with their on-disk coverage.
func (m *Manager) Catalogs() ([]CatalogInfo, error) {
	all, err := m.catalogs()
	if err != nil {
		return nil, fmt.Errorf("load catalogs: %w", err)
	}
	infos := make([]CatalogInfo, 0, len(all))
	for _, c := range all {
		present, _ := c.Coverage(m.outputDir, m.minBytes)
		infos = append(infos, CatalogInfo{
			Name:        c.Name,
			Description: c.Description,
			Images:      len(c.Images),
			Present:     present,
		})
	}
	return infos, nil
}

// CreateRun validates the catalog names, records a new run and starts it in
// the background. It fails with ErrBusy when another run holds the slot.
func (m *Manager) CreateRun(names []string, withArchive bool) (Run, error) {
	cleaned := make([]string, 0, len(names))
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			cleaned = append(cleaned, name)
		}
	}
	if len(cleaned) == 0 {
		return Run{}, ErrNoCatalogs
	}
	all, err := m.catalogs()
	if err != nil {
		return Run{}, fmt.Errorf("load catalogs: %w", err)
	}
	selected, err := catalog.Select(all, cleaned)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Run{}, fmt.Errorf("%w: %w", ErrUnknownCatalog, err)
		}
		return Run{}, err //nolint:wrapcheck
	}
	if m.batch == nil {
		return Run{}, errors.New("no batch function configured")
	}

	// take the slot synchronously so IsBusy is accurate as soon as we return
	select {
	case m.semaphore <- struct{}{}:
	default:
		return Run{}, ErrBusy
	}

	total := 0
	for _, c := range selected {
		total += len(c.Images)
	}
	newRun := &Run{
		ID:        uuid.NewString(),
		Status:    StatusCreated,
		Catalogs:  cleaned,
		Archive:   withArchive,
		Total:     total,
		CreatedAt: time.Now(),
		Outcomes:  make([]fetch.Outcome, 0, total),
	}

	m.mu.Lock()
	m.runs[newRun.ID] = newRun
	snapshot := newRun.clone()
	m.mu.Unlock()

	if err := m.persistRun(snapshot); err != nil {
		log.Warn().Str("run_id", newRun.ID).Err(err).Msg("persist run failed")
	}

	m.workersWG.Add(1)
	go func() {
		defer m.workersWG.Done()
		m.process(newRun.ID, selected)
	}()
	return snapshot, nil
}

// GetRun returns a snapshot of the run.
func (m *Manager) GetRun(runID string) (Run, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	found, ok := m.runs[runID]
	if !ok {
		return Run{}, false
	}
	return found.clone(), true
}

// ListRuns returns snapshots of all runs, newest first.
func (m *Manager) ListRuns() []Run {
	m.mu.RLock()
	runs := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r.clone())
	}
	m.mu.RUnlock()
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs
}

// SetBaseContext sets the context that bounds running batches. Intended to be
// set at process startup and cancelled during shutdown.
func (m *Manager) SetBaseContext(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()
}

// WaitAll blocks until all in-flight runs finish or the context is done.
// Returns true if all workers finished, false if timed out.
func (m *Manager) WaitAll(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		m.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// UseArchiveBuilder allows tests to inject a fake archive builder.
// Not safe for concurrent mutation with running batches; intended for test setup only.
func (m *Manager) UseArchiveBuilder(builder ArchiveBuilder) {
	m.mu.Lock()
	m.buildArchive = builder
	m.mu.Unlock()
}

// persistRun writes the snapshot to disk atomically under data/runs/<id>/status.json.
func (m *Manager) persistRun(snapshot Run) error {
	if m.store == nil {
		return nil
	}
	return m.store.Save(snapshot)
}
