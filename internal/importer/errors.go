package importer

import (
	"errors"
	"fmt"
)

// ErrNameNotFound is returned when an account name id does not resolve.
// It indicates a bug in the caller (ids come from rows this store wrote),
// so the batch is failed rather than the name recreated.
var ErrNameNotFound = errors.New("account name not found")

// ImportError classifies a failed batch.
type ImportError struct {
	// Code identifies the error category.
	Code ImportErrorCode

	// Batch is the key of the affected batch.
	Batch string

	// SourceID identifies the post being processed, when known.
	SourceID string

	// Err is the underlying cause.
	Err error
}

// ImportErrorCode categorizes batch failures.
type ImportErrorCode string

const (
	// ErrCodeMalformed indicates the batch could not be decoded.
	ErrCodeMalformed ImportErrorCode = "MALFORMED_BATCH"

	// ErrCodeMissingAccount indicates a post with no resolvable account name.
	ErrCodeMissingAccount ImportErrorCode = "MISSING_ACCOUNT"

	// ErrCodeStore indicates a database failure inside the batch transaction.
	ErrCodeStore ImportErrorCode = "STORE_FAILURE"
)

// Error implements the error interface.
func (e *ImportError) Error() string {
	if e.SourceID != "" {
		return fmt.Sprintf("%s: batch %s, post %s: %v", e.Code, e.Batch, e.SourceID, e.Err)
	}
	return fmt.Sprintf("%s: batch %s: %v", e.Code, e.Batch, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// IsMalformed returns true if err is a decode failure.
// Uses errors.As to handle wrapped errors.
func IsMalformed(err error) bool {
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie.Code == ErrCodeMalformed
	}
	return false
}

// IsMissingAccount returns true if err is a missing account failure.
func IsMissingAccount(err error) bool {
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie.Code == ErrCodeMissingAccount
	}
	return false
}
