// Package geocoding looks up the coordinates of a commune from its name and postal code.
package geocoding

import (
	"context"
	"fmt"

	exception "github.com/tigerroll/communes/pkg/batch/support/util/exception"
)

// Geocoder resolves a free-text query to coordinates. found is false when the service has no
// usable answer; err is reserved for failures to ask.
type Geocoder interface {
	Lookup(ctx context.Context, query string) (lat, lon float64, found bool, err error)
}

// TransientNetworkError is a lookup failure that may succeed when retried: the service could
// not be reached, timed out, throttled the client or answered with a server error.
type TransientNetworkError struct {
	Query string
	// StatusCode is the HTTP status, 0 when no response was received.
	StatusCode int
	Err        error
}

func (e *TransientNetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("geocoding '%s': transient HTTP status %d", e.Query, e.StatusCode)
	}
	return fmt.Sprintf("geocoding '%s': %v", e.Query, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// IsRetryable always reports true.
func (e *TransientNetworkError) IsRetryable() bool { return true }

func init() {
	exception.RegisterErrorType("TransientNetworkError", &TransientNetworkError{})
}
