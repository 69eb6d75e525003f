package assisttypes

import (
	"errors"
	"fmt"
)

// ErrTokenizerUnavailable reports that token counting is not possible for this session.
// It is informational: chat keeps working without a token count.
var ErrTokenizerUnavailable = errors.New("tokenizer unavailable")

// ProviderError wraps a failure from an external AI provider.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed (status %d): %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// PersistenceError wraps a read or write failure of a named record.
type PersistenceError struct {
	Op   string
	Name string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Name, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// FormatError reports a malformed persisted record. Index is the offending element, or -1
// when the record as a whole could not be parsed.
type FormatError struct {
	Index  int
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Index < 0 {
		return "malformed chat record: " + e.Reason
	}
	return fmt.Sprintf("malformed chat record: message %d: %s", e.Index, e.Reason)
}

func (e *FormatError) Unwrap() error { return e.Err }

// RecordingError reports that audio capture could not start or complete.
type RecordingError struct {
	Reason string
	Err    error
}

func (e *RecordingError) Error() string {
	if e.Err != nil {
		return "recording: " + e.Reason + ": " + e.Err.Error()
	}
	return "recording: " + e.Reason
}

func (e *RecordingError) Unwrap() error { return e.Err }
