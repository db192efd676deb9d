package ingest

import "fmt"

// UnknownSourceError wraps any failure, including a recovered panic, that
// aborted processing of one owner's log.
type UnknownSourceError struct {
	Owner string
	Stage string
	Err   error
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("source %s failed at %s: %v", e.Owner, e.Stage, e.Err)
}

func (e *UnknownSourceError) Unwrap() error { return e.Err }
