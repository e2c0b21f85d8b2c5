package run

import "errors"

var (
	ErrNoCatalogs     = errors.New("no catalogs provided")
	ErrUnknownCatalog = errors.New("unknown catalog")
	ErrRunNotFound    = errors.New("run not found")
	ErrBusy           = errors.New("a run is already in progress")
)
