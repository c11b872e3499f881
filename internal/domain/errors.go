package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredential is returned before any network call when no API key is set.
	ErrMissingCredential = errors.New("missing API credential: set the OpenAI API key first")

	// ErrMissingArtifact is returned when indexing is requested before the
	// knowledge base exists.
	ErrMissingArtifact = errors.New("knowledge base not found: generate the PDF first")

	// ErrProcessingFailed is matched by every ExternalServiceError.
	ErrProcessingFailed = errors.New("processing failed")
)

// SourceFetchError describes why a single source could not be acquired.
// Its message is the sentinel text written into the knowledge base.
type SourceFetchError struct {
	URL string
	Err error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("[ERROR scraping %s]: %v", e.URL, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// ExternalServiceError wraps a failed embedding or chat-model call.
type ExternalServiceError struct {
	Op  string
	Err error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrProcessingFailed, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Is reports ErrProcessingFailed as a match so callers can test the class.
func (e *ExternalServiceError) Is(target error) bool {
	return target == ErrProcessingFailed
}
