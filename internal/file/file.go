package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

const appDirPerm os.FileMode = 0o750

const appFilePerm os.FileMode = 0o644

// EnsureDir creates the directory if it does not exist.
func EnsureDir(dirPath string) error {
	if dirPath == "" {
		return errors.New("empty dir path")
	}
	if err := os.MkdirAll(dirPath, appDirPerm); err != nil { //nolint:gosec // app-owned data dir
		return fmt.Errorf("ensure dir: %w", err)
	}
	return nil
}

// Size returns the byte size of a regular file. ok is false when the path
// does not exist, cannot be stat'ed or is not a regular file.
func Size(path string) (size int64, ok bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return info.Size(), true
}

// WriteJSONAtomic marshals the value and atomically writes it to filename.
func WriteJSONAtomic(filename string, v any) error {
	return writeAtomic(filename, 0, func(w io.Writer) error {
		jsonEncoder := json.NewEncoder(w)
		jsonEncoder.SetEscapeHTML(true)
		jsonEncoder.SetIndent("", "  ")
		if err := jsonEncoder.Encode(v); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	})
}

// WriteAtomic copies everything from reader into filename. The destination is
// only replaced once the new content is fully synced, so a failed write leaves
// any previous file untouched.
func WriteAtomic(filename string, reader io.Reader) error {
	return WriteAtomicFunc(filename, func(w io.Writer) error {
		if _, err := io.Copy(w, reader); err != nil {
			return fmt.Errorf("copy to temp: %w", err)
		}
		return nil
	})
}

// WriteAtomicFunc is WriteAtomic for content produced by fill.
func WriteAtomicFunc(filename string, fill func(w io.Writer) error) error {
	return writeAtomic(filename, appFilePerm, fill)
}

// writeAtomic writes via a temporary file in the destination directory
// followed by a rename.
func writeAtomic(filename string, perm os.FileMode, fill func(w io.Writer) error) error {
	if filename == "" {
		return errors.New("empty filename")
	}

	dir := filepath.Dir(filename)
	if err := EnsureDir(dir); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tempFile.Name()

	if err := fill(tempFile); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tmpName)
		return err
	}

	// ensure data hits disk
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if perm != 0 {
		// CreateTemp always uses 0600
		if err := os.Chmod(tmpName, perm); err != nil {
			_ = os.Remove(tmpName)
			return fmt.Errorf("chmod temp: %w", err)
		}
	}

	// rename does not replace an existing file on Windows
	if runtime.GOOS == "windows" {
		if _, err := os.Stat(filename); err == nil {
			_ = os.Remove(filename)
		}
	}

	if err := os.Rename(tmpName, filename); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp: %w", err)
	}
	return nil
}
