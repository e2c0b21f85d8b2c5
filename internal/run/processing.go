package run

import (
	"context"
	"time"

	"carimages/internal/catalog"
	"carimages/internal/fetch"

	"github.com/rs/zerolog/log"
)

// process executes the run on the slot acquired by CreateRun and releases it on return.
func (m *Manager) process(runID string, catalogs []catalog.Catalog) {
	defer func() { <-m.semaphore }()

	m.mu.Lock()
	current, found := m.runs[runID]
	if !found {
		m.mu.Unlock()
		return
	}
	current.Status = StatusInProgress
	processingContext := m.baseCtx
	builder := m.buildArchive
	snapshot := current.clone()
	m.mu.Unlock()
	if processingContext == nil {
		processingContext = context.Background()
	}
	if err := m.persistRun(snapshot); err != nil {
		log.Warn().Str("run_id", runID).Err(err).Msg("persist in_progress failed")
	}
	log.Info().Str("run_id", runID).Strs("catalogs", snapshot.Catalogs).Int("total", snapshot.Total).Msg("run started")

	result, err := m.batch(processingContext, catalogs, func(o fetch.Outcome) {
		m.mu.Lock()
		current.Outcomes = append(current.Outcomes, o)
		applyOutcome(current, o)
		progress := current.clone()
		m.mu.Unlock()
		if err := m.persistRun(progress); err != nil {
			log.Warn().Str("run_id", runID).Err(err).Msg("persist progress failed")
		}
	})

	status := StatusDone
	errMsg := ""
	switch {
	case err == nil:
	case fetch.IsCancelled(err):
		status = StatusCancelled
		errMsg = err.Error()
	default:
		status = StatusFailed
		errMsg = err.Error()
	}

	archivePath := ""
	if snapshot.Archive && status == StatusDone {
		archivePath, errMsg = m.archiveRun(processingContext, builder, runID, result.Written())
		if errMsg != "" {
			status = StatusFailed
		}
	}

	finished := time.Now()
	m.mu.Lock()
	current.Status = status
	current.Error = errMsg
	current.ArchivePath = archivePath
	current.Succeeded = result.Succeeded
	current.Failed = result.Failed
	current.Skipped = result.Skipped
	current.Bytes = result.Bytes
	current.Outcomes = append([]fetch.Outcome(nil), result.Outcomes...)
	current.FinishedAt = &finished
	final := current.clone()
	m.mu.Unlock()
	if err := m.persistRun(final); err != nil {
		log.Warn().Str("run_id", runID).Err(err).Msg("persist final state failed")
	}

	log.Info().
		Str("run_id", runID).
		Str("status", string(status)).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Int64("bytes", result.Bytes).
		Msg("run finished")
}

// archiveRun zips the files present after the run. It returns the archive
// path, or an error message when the archive could not be built.
func (m *Manager) archiveRun(ctx context.Context, builder ArchiveBuilder, runID string, files []string) (string, string) {
	if len(files) == 0 {
		return "", ""
	}
	if m.store == nil || builder == nil {
		return "", "archive storage not configured"
	}
	dest, err := m.store.ArchiveDest(runID)
	if err != nil {
		return "", err.Error()
	}
	results, err := builder(ctx, dest, files)
	if err != nil {
		return "", "archive: " + err.Error()
	}
	for _, r := range results {
		if r.Err != "" {
			log.Warn().Str("run_id", runID).Str("file", r.Filename).Str("error", r.Err).Msg("file left out of archive")
		}
	}
	return dest, ""
}

func applyOutcome(r *Run, o fetch.Outcome) {
	switch o.State {
	case fetch.StateSkipped:
		r.Succeeded++
		r.Skipped++
	case fetch.StateFetched:
		r.Succeeded++
		r.Bytes += o.Bytes
	default:
		r.Failed++
	}
}
