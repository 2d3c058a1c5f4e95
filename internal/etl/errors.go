package etl

import (
	"errors"
	"fmt"
)

// ErrAllSinksFailed is returned by a run in which every sink reported a
// failure. Partial success (at least one sink written) is not an error.
var ErrAllSinksFailed = errors.New("all sinks failed")

// ExtractionError reports a failed extraction: network failure, a
// non-2xx response, or a payload that could not be parsed. It is fatal
// to the run; no sink is attempted after it.
type ExtractionError struct {
	URL        string
	StatusCode int // zero when the failure happened before a response arrived
	Err        error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// SchemaValidationError reports a record that could not be shaped into
// the dataset schema, carrying the offending record index. Under the
// fail policy it aborts the run; under drop it is collected into the run
// summary.
type SchemaValidationError struct {
	Index  int    `json:"index"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("record %d: field %q: %s", e.Index, e.Field, e.Reason)
}

// LoadError reports a failed sink load and carries the sink identity.
// It is captured per sink and never aborts sibling sinks.
type LoadError struct {
	Sink string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Sink, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
