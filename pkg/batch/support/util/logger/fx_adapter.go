package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
)

// FxLoggerAdapter routes Fx container events to the batch logger. Wiring details are DEBUG,
// failures are ERROR, and only the start of the application is reported at INFO.
type FxLoggerAdapter struct{}

// NewFxLoggerAdapter returns the adapter installed by Module.
func NewFxLoggerAdapter() fxevent.Logger {
	return &FxLoggerAdapter{}
}

// LogEvent implements fxevent.Logger.
func (l *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		Debugf("Starting hook %s (registered by %s).", hookName(e.FunctionName), e.CallerName)
	case *fxevent.OnStartExecuted:
		if e.Err != nil {
			Errorf("Start hook %s failed after %s: %v", hookName(e.FunctionName), e.Runtime, e.Err)
			return
		}
		Debugf("Start hook %s done in %s.", hookName(e.FunctionName), e.Runtime)
	case *fxevent.OnStopExecuting:
		Debugf("Stopping hook %s (registered by %s).", hookName(e.FunctionName), e.CallerName)
	case *fxevent.OnStopExecuted:
		if e.Err != nil {
			Errorf("Stop hook %s failed after %s: %v", hookName(e.FunctionName), e.Runtime, e.Err)
			return
		}
		Debugf("Stop hook %s done in %s.", hookName(e.FunctionName), e.Runtime)
	case *fxevent.Supplied:
		if e.Err != nil {
			Errorf("Could not supply %s: %v", e.TypeName, e.Err)
			return
		}
		Debugf("Supplied %s.", e.TypeName)
	case *fxevent.Provided:
		if e.Err != nil {
			Errorf("Could not register constructor %s: %v", hookName(e.ConstructorName), e.Err)
			return
		}
		if IsDebugEnabled() {
			Debugf("Constructor %s provides %s.", hookName(e.ConstructorName), strings.Join(e.OutputTypeNames, ", "))
		}
	case *fxevent.Decorated:
		if e.Err != nil {
			Errorf("Could not decorate with %s: %v", hookName(e.DecoratorName), e.Err)
		}
	case *fxevent.Invoking:
		Debugf("Invoking %s.", hookName(e.FunctionName))
	case *fxevent.Invoked:
		if e.Err != nil {
			Errorf("Invoking %s failed: %v", hookName(e.FunctionName), e.Err)
		}
	case *fxevent.Stopping:
		Warnf("Received %s, stopping the application.", strings.ToUpper(e.Signal.String()))
	case *fxevent.Stopped:
		if e.Err != nil {
			Errorf("Application did not stop cleanly: %v", e.Err)
		}
	case *fxevent.RollingBack:
		Errorf("Application failed to start, rolling back: %v", e.StartErr)
	case *fxevent.RolledBack:
		if e.Err != nil {
			Errorf("Rollback failed: %v", e.Err)
		}
	case *fxevent.Started:
		if e.Err != nil {
			Errorf("Application failed to start: %v", e.Err)
			return
		}
		Infof("Application started.")
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			Errorf("Could not install the Fx logger %s: %v", e.ConstructorName, e.Err)
		}
	}
}

// hookName strips the closure suffix Fx reports for anonymous functions
// ("app.startLaunch.func1" becomes "app.startLaunch") and the package path
// ("github.com/x/y/app.startLaunch" becomes "app.startLaunch").
func hookName(funcName string) string {
	if idx := strings.Index(funcName, ".func"); idx != -1 {
		funcName = funcName[:idx]
	}
	if idx := strings.LastIndex(funcName, "/"); idx != -1 {
		funcName = funcName[idx+1:]
	}
	return funcName
}
