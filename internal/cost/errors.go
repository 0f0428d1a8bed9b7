package cost

import (
	"fmt"
	"strings"
)

// DataSourceError reports a failure to obtain cost data from a source:
// network errors, non-2xx responses, malformed bodies or missing
// credentials. StatusCode is zero when no HTTP response was received.
type DataSourceError struct {
	Source     string
	StatusCode int
	Message    string
	Err        error
}

func (e *DataSourceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("cost data source %s: status %d: %s", e.Source, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("cost data source %s: %s", e.Source, e.Message)
}

func (e *DataSourceError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the failure is credential- or backend-related.
// The controller treats fatal failures as unrecoverable for the current
// provider and forces a full reset instead of leaving stale state around.
func (e *DataSourceError) Fatal() bool {
	if e.StatusCode == 401 || e.StatusCode == 403 || e.StatusCode >= 500 {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "credentials") || strings.Contains(msg, "backend")
}
