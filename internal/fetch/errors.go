package fetch

import (
	"errors"
	"fmt"
)

var (
	ErrTooSmall   = errors.New("payload too small")
	ErrTooLarge   = errors.New("payload too large")
	ErrNotImage   = errors.New("payload is not a decodable image")
	ErrUnresolved = errors.New("no image url for topic")
	ErrNoResolver = errors.New("no topic resolver configured")
)

// TransportError is a failed request, a non-2xx status or a broken body.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("get %s: http %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("get %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StorageError means the output directory cannot be written. Unlike remote
// failures it stops the batch.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string { return fmt.Sprintf("write %s: %v", e.Path, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorage reports whether err is a *StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
