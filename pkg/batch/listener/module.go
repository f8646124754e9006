// Package listener wires the built-in observers into the Fx graph.
package listener

import (
	"context"

	"go.uber.org/fx"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	config "github.com/tigerroll/communes/pkg/batch/core/config"
	metrics "github.com/tigerroll/communes/pkg/batch/core/metrics"
	"github.com/tigerroll/communes/pkg/batch/listener/logging"
	listenermetrics "github.com/tigerroll/communes/pkg/batch/listener/metrics"
	"github.com/tigerroll/communes/pkg/batch/listener/notification"
	"github.com/tigerroll/communes/pkg/batch/listener/tracing"
)

// ObserverParams collects the observers contributed to the "observers" value group.
type ObserverParams struct {
	fx.In

	Observers []port.Observer `group:"observers"`
}

// NewCompositeObserver combines every contributed observer.
func NewCompositeObserver(p ObserverParams) port.CompositeObserver {
	return port.CompositeObserver(p.Observers)
}

// NewAsyncMetricRecorderFromConfig wraps recorder in an AsyncMetricRecorder that is flushed when
// the application stops.
func NewAsyncMetricRecorderFromConfig(lc fx.Lifecycle, cfg *config.Config, recorder metrics.MetricRecorder) *listenermetrics.AsyncMetricRecorder {
	async := listenermetrics.NewAsyncMetricRecorder(cfg.Surfin.Telemetry.MetricsAsyncBufferSize, recorder)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			async.Close()
			return nil
		},
	})
	return async
}

func asObserver(f interface{}) interface{} {
	return fx.Annotate(f, fx.As(new(port.Observer)), fx.ResultTags(`group:"observers"`))
}

// Module provides the logging, metrics, tracing and notification observers and their composite.
var Module = fx.Options(
	fx.Provide(NewAsyncMetricRecorderFromConfig),
	fx.Provide(fx.Annotate(notification.NewLogNotifier, fx.As(new(notification.Notifier)))),
	fx.Provide(
		asObserver(func(cfg *config.Config) *logging.LoggingObserver {
			return logging.NewLoggingObserver(cfg.MaskParameters)
		}),
		asObserver(func(recorder *listenermetrics.AsyncMetricRecorder) *listenermetrics.MetricsObserver {
			return listenermetrics.NewMetricsObserver(recorder)
		}),
		asObserver(tracing.NewTracingObserver),
		asObserver(notification.NewNotificationObserver),
	),
	fx.Provide(NewCompositeObserver),
)
