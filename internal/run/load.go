package run

import (
	"fmt"
	"time"
)

// LoadFromDisk scans data/runs and loads runs into memory.
// Runs left created or in_progress by a previous process are marked failed.
func (m *Manager) LoadFromDisk() error {
	if m.store == nil {
		return nil
	}
	loadedRuns, err := m.store.LoadAll()
	if err != nil {
		return fmt.Errorf("load runs: %w", err)
	}
	for i := range loadedRuns {
		loaded := &loadedRuns[i]
		if !loaded.Status.Finished() {
			now := time.Now()
			loaded.Status = StatusFailed
			loaded.Error = "interrupted by restart"
			loaded.FinishedAt = &now
			_ = m.persistRun(loaded.clone())
		}
		m.mu.Lock()
		m.runs[loaded.ID] = loaded
		m.mu.Unlock()
	}
	return nil
}
