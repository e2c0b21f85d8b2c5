package run

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	fileutil "carimages/internal/file"

	"github.com/rs/zerolog/log"
)

const (
	runsDirName    = "runs"
	recordFileName = "status.json"
	archiveName    = "archive.zip"
)

// Store persists run records as one JSON file per run:
//
//	<dataDir>/runs/<run id>/status.json
//	<dataDir>/runs/<run id>/archive.zip   (only when an archive was built)
type Store struct {
	root string
}

func NewStore(dataDir string) *Store {
	if dataDir == "" {
		dataDir = "data"
	}
	return &Store{root: filepath.Join(dataDir, runsDirName)}
}

// Save replaces the record of r.ID. A reader never sees a half-written record.
func (s *Store) Save(r Run) error {
	if r.ID == "" {
		return fmt.Errorf("save run: empty id")
	}
	if err := fileutil.WriteJSONAtomic(filepath.Join(s.root, r.ID, recordFileName), r); err != nil {
		return fmt.Errorf("save run %s: %w", r.ID, err)
	}
	return nil
}

// ArchiveDest returns where the archive of runID goes, creating its directory.
func (s *Store) ArchiveDest(runID string) (string, error) {
	dir := filepath.Join(s.root, runID)
	if err := fileutil.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("archive dir for run %s: %w", runID, err)
	}
	return filepath.Join(dir, archiveName), nil
}

// LoadAll returns every readable record ordered by run id. Records that cannot
// be read or decoded are logged and left on disk.
func (s *Store) LoadAll() ([]Run, error) {
	paths, err := filepath.Glob(filepath.Join(s.root, "*", recordFileName))
	if err != nil {
		return nil, fmt.Errorf("list run records: %w", err)
	}
	sort.Strings(paths)

	runs := make([]Run, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path) //nolint:gosec // below the app data dir
		if err != nil {
			log.Warn().Str("path", path).Err(err).Msg("skipping unreadable run record")
			continue
		}
		var r Run
		if err := json.Unmarshal(data, &r); err != nil {
			log.Warn().Str("path", path).Err(err).Msg("skipping corrupt run record")
			continue
		}
		if r.ID != filepath.Base(filepath.Dir(path)) {
			log.Warn().Str("path", path).Str("run_id", r.ID).Msg("skipping run record stored under another id")
			continue
		}
		runs = append(runs, r)
	}
	return runs, nil
}
