package run

import (
	"time"

	"carimages/internal/fetch"
)

type Status string

const (
	StatusCreated    Status = "created"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Finished reports whether the run will not change anymore.
func (s Status) Finished() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCancelled
}

// Run is one batch execution over a set of catalogs.
type Run struct {
	ID          string          `json:"id"`
	Status      Status          `json:"status"`
	Catalogs    []string        `json:"catalogs"`
	Archive     bool            `json:"archive"`
	Total       int             `json:"total"`
	CreatedAt   time.Time       `json:"created_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	Succeeded   int             `json:"succeeded"`
	Failed      int             `json:"failed"`
	Skipped     int             `json:"skipped"`
	Bytes       int64           `json:"bytes"`
	Outcomes    []fetch.Outcome `json:"outcomes"`
	Error       string          `json:"error,omitempty"`
	ArchivePath string          `json:"archive_path,omitempty"`
}

// clone copies the run so callers can read it while the worker updates the original.
func (r *Run) clone() Run {
	c := *r
	c.Catalogs = append([]string(nil), r.Catalogs...)
	c.Outcomes = make([]fetch.Outcome, len(r.Outcomes))
	copy(c.Outcomes, r.Outcomes)
	if r.FinishedAt != nil {
		finished := *r.FinishedAt
		c.FinishedAt = &finished
	}
	return c
}

// CatalogInfo summarizes a catalog and how much of it is already on disk.
type CatalogInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Images      int    `json:"images"`
	Present     int    `json:"present"`
}

type Options struct {
	DataDir   string
	OutputDir string
	MinBytes  int64
	// Catalogs loads the available catalogs; it is called on every request
	// so edits on disk are picked up without a restart.
	Catalogs CatalogLoader
	Batch    BatchFunc
}
