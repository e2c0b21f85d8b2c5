// Package archive packs fetched images into a zip file.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	fileutil "carimages/internal/file"

	"github.com/rs/zerolog/log"
)

var ErrNoFiles = errors.New("no files provided")

// Result describes the outcome of adding a single file to the archive.
type Result struct {
	Filename string `json:"filename"`
	Err      string `json:"error,omitempty"`
}

// BuildArchive writes the given local files into a zip at destZipPath.
// It always returns one Result per input path; unreadable files get Err set
// and are left out of the archive. The zip replaces destZipPath atomically.
func BuildArchive(ctx context.Context, destZipPath string, files []string) ([]Result, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	results := make([]Result, len(files))
	err := fileutil.WriteAtomicFunc(destZipPath, func(w io.Writer) error {
		zipWriter := zip.NewWriter(w)
		used := make(map[string]int, len(files))
		for i, path := range files {
			if err := ctx.Err(); err != nil {
				_ = zipWriter.Close()
				return fmt.Errorf("archive interrupted: %w", err)
			}
			results[i] = addFile(zipWriter, path, uniqueName(used, deriveFilename(path, i)))
		}
		if err := zipWriter.Close(); err != nil {
			log.Error().Err(err).Msg("closing zip writer failed")
			return fmt.Errorf("close zip writer: %w", err)
		}
		return nil
	})
	if err != nil {
		return results, err
	}
	return results, nil
}

// addFile copies a single file into the zip, returning the Result.
func addFile(zipWriter *zip.Writer, path, name string) Result {
	result := Result{Filename: name}

	source, err := os.Open(path) //nolint:gosec // paths come from the run's own outputs
	if err != nil {
		result.Err = err.Error()
		log.Warn().Str("file", path).Err(err).Msg("open for archive failed")
		return result
	}
	defer func() { _ = source.Close() }()

	info, err := source.Stat()
	if err != nil || !info.Mode().IsRegular() {
		result.Err = "not a regular file"
		return result
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		result.Err = err.Error()
		return result
	}
	header.Name = name
	// images are already compressed
	header.Method = zip.Store

	entry, err := zipWriter.CreateHeader(header)
	if err != nil {
		result.Err = err.Error()
		log.Warn().Str("file", path).Err(err).Msg("zip entry create failed")
		return result
	}
	if _, err := io.Copy(entry, source); err != nil {
		result.Err = err.Error()
		log.Warn().Str("file", path).Err(err).Msg("copy into zip failed")
	}
	return result
}

// deriveFilename takes the base name of the path or falls back to index-based naming.
func deriveFilename(path string, index int) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return fmt.Sprintf("file-%d", index+1)
	}
	base := filepath.Base(trimmed)
	if base == string(filepath.Separator) || base == "." || base == "" {
		return fmt.Sprintf("file-%d", index+1)
	}
	return base
}

// uniqueName suffixes repeated names: a.jpg, a-2.jpg, a-3.jpg.
func uniqueName(used map[string]int, name string) string {
	used[name]++
	n := used[name]
	if n == 1 {
		return name
	}
	ext := filepath.Ext(name)
	candidate := strings.TrimSuffix(name, ext) + "-" + strconv.Itoa(n) + ext
	return uniqueName(used, candidate)
}
