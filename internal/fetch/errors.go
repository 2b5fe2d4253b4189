package fetch

import (
	"errors"
	"fmt"
)

// DownloadError describes a failed transfer. Status is set when the server
// answered with a non-2xx code; Canceled when the transfer was aborted.
type DownloadError struct {
	URL      string
	Status   int
	Canceled bool
	Err      error
}

func (e *DownloadError) Error() string {
	switch {
	case e.Canceled:
		return fmt.Sprintf("download %s: canceled", e.URL)
	case e.Status != 0:
		return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.Status)
	default:
		return fmt.Sprintf("download %s: %v", e.URL, e.Err)
	}
}

func (e *DownloadError) Unwrap() error { return e.Err }

// IsCanceled reports whether err is a download aborted by Cancel or an
// expired context.
func IsCanceled(err error) bool {
	var de *DownloadError
	return errors.As(err, &de) && de.Canceled
}

type busyError struct{}

func (busyError) Error() string { return "fetch: download already in progress" }

// IsBusy reports whether err means the fetcher already had a transfer in flight.
func IsBusy(err error) bool {
	var be busyError
	return errors.As(err, &be)
}
