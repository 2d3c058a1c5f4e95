package etl

import (
	"context"
	"time"
)

// Sink is the capability every target store implements. Load persists
// the dataset and reports how many rows made it. Implementations scope
// their connection to the call, enforce their own timeout and release
// the connection on every exit path; a returned error marks this sink
// failed without affecting the others.
type Sink interface {
	Name() string
	Load(ctx context.Context, ds *Dataset) (LoadResult, error)
}

// LoadResult is the per-sink outcome of one load call. RowsFailed is
// only meaningful for stores that can reject individual rows while
// accepting the rest.
type LoadResult struct {
	Sink        string        `json:"sink"`
	RowsWritten int           `json:"rowsWritten"`
	RowsFailed  int           `json:"rowsFailed,omitempty"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// OK reports whether the load succeeded.
func (r LoadResult) OK() bool { return r.Error == "" }
