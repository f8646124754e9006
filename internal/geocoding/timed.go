package geocoding

import (
	"context"
	"time"

	metrics "github.com/tigerroll/communes/pkg/batch/core/metrics"
)

// LookupOperation is the operation name lookups are recorded under.
const LookupOperation = "geocoding.lookup"

// TimedGeocoder records the duration and outcome of every lookup of the wrapped Geocoder.
type TimedGeocoder struct {
	delegate Geocoder
	recorder metrics.MetricRecorder
	now      func() time.Time
}

var _ Geocoder = (*TimedGeocoder)(nil)

// NewTimedGeocoder wraps delegate. A nil recorder disables recording.
func NewTimedGeocoder(delegate Geocoder, recorder metrics.MetricRecorder) *TimedGeocoder {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &TimedGeocoder{delegate: delegate, recorder: recorder, now: time.Now}
}

func (g *TimedGeocoder) Lookup(ctx context.Context, query string) (float64, float64, bool, error) {
	start := g.now()
	lat, lon, found, err := g.delegate.Lookup(ctx, query)
	g.recorder.RecordDuration(ctx, LookupOperation, g.now().Sub(start), map[string]string{"outcome": outcome(found, err)})
	return lat, lon, found, err
}

func outcome(found bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case found:
		return "found"
	default:
		return "not_found"
	}
}
