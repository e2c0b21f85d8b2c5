package fetch

import fileutil "carimages/internal/file"

// IsSatisfied reports whether path already holds a file larger than minBytes.
// Such a file is never fetched again nor overwritten.
func IsSatisfied(path string, minBytes int64) bool {
	size, ok := fileutil.Size(path)
	return ok && size > minBytes
}
