package etl

import "fmt"

// SourceUnavailableError marks a required upstream fetch that failed with no
// safe fallback. It aborts the run before any write.
type SourceUnavailableError struct {
	Source string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// TransformError marks a normalization or merge failure.
type TransformError struct {
	Stage string
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s: %v", e.Stage, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// PersistenceError marks a failed upsert transaction. The transaction rolls
// back fully; prior state is unaffected.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist merged records: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
