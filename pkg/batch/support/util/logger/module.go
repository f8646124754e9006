package logger

import "go.uber.org/fx"

// Module replaces the default Fx console logger with FxLoggerAdapter.
var Module = fx.Options(
	fx.WithLogger(NewFxLoggerAdapter),
)
