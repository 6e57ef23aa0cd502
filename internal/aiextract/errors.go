package aiextract

import (
	"errors"
	"fmt"
)

// ErrExtractionFailed matches every error returned by Client.Extract.
var ErrExtractionFailed = errors.New("ai extraction failed")

// ExtractionError reports why the LLM could not produce usable messages.
type ExtractionError struct {
	Op  string // "request" or "parse"
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("ai extraction failed: %s: %v", e.Op, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtractionFailed
}

// HTTPError is a non-success response from the LLM endpoint.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}
