package metrics

import (
	"context"

	"go.uber.org/fx"

	config "github.com/tigerroll/communes/pkg/batch/core/config"
	metrics "github.com/tigerroll/communes/pkg/batch/core/metrics"
)

// NewTelemetryFromConfig sets up telemetry for the configured collector and shuts it down when
// the application stops.
func NewTelemetryFromConfig(lc fx.Lifecycle, cfg *config.Config) (*Telemetry, error) {
	telemetry, err := SetupTelemetry(context.Background(), cfg.Surfin.Telemetry)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: telemetry.Shutdown})
	return telemetry, nil
}

// NewMetricRecorder returns the Prometheus recorder, combined with an OTel recorder when
// telemetry is enabled.
func NewMetricRecorder(prom *PrometheusRecorder, telemetry *Telemetry) (metrics.MetricRecorder, error) {
	if !telemetry.Enabled {
		return prom, nil
	}
	otelRecorder, err := NewOtelMetricRecorder(telemetry.MeterProvider)
	if err != nil {
		return nil, err
	}
	return CompositeRecorder{prom, otelRecorder}, nil
}

// NewTracer returns an OpenTelemetry tracer when telemetry is enabled and a no-op tracer otherwise.
func NewTracer(telemetry *Telemetry) metrics.Tracer {
	if !telemetry.Enabled {
		return metrics.NewNoOpTracer()
	}
	return NewOpenTelemetryTracer(telemetry.TracerProvider)
}

// Module is an Fx module that provides the metric recorder and tracer backends.
var Module = fx.Options(
	fx.Provide(NewPrometheusRecorder),
	fx.Provide(NewTelemetryFromConfig),
	fx.Provide(NewMetricRecorder),
	fx.Provide(NewTracer),
)
