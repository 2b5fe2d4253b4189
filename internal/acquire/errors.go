package acquire

import (
	"errors"
	"fmt"
	"strings"
)

// ChecksumError means a downloaded file did not match its declared SHA-256.
type ChecksumError struct {
	URL  string
	Want string
	Got  string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: want %s, got %s", e.URL, e.Want, e.Got)
}

// IsChecksumMismatch reports whether err is a checksum verification failure.
func IsChecksumMismatch(err error) bool {
	var ce *ChecksumError
	return errors.As(err, &ce)
}

// VariantFailure records why one candidate variant was rejected.
type VariantFailure struct {
	Tag    string
	Reason string
}

// AcquireError aggregates the failure of every candidate variant.
type AcquireError struct {
	Binary   string
	Failures []VariantFailure
}

func (e *AcquireError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Tag, f.Reason))
	}
	return fmt.Sprintf("no usable %s binary after trying all variants: %s",
		e.Binary, strings.Join(parts, "; "))
}

// IsExhausted reports whether err means every variant was tried and failed.
func IsExhausted(err error) bool {
	var ae *AcquireError
	return errors.As(err, &ae)
}
