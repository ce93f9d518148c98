package logging

import (
	"fmt"
	"time"
)

// ComponentLogger provides scoped logging for a specific component.
// It writes to both a local ErrorLogger (file) and a remote Dispatcher
// (syslog, OTLP) when configured. Nil-safe: if both are nil, calls are no-ops.
type ComponentLogger struct {
	component   string
	errorLogger *ErrorLogger
	dispatcher  *Dispatcher
	fields      map[string]any
}

// NewComponentLogger creates a logger for the given component.
// Either errorLogger or dispatcher (or both) may be nil.
func NewComponentLogger(component string, errorLogger *ErrorLogger, dispatcher *Dispatcher) *ComponentLogger {
	return &ComponentLogger{
		component:   component,
		errorLogger: errorLogger,
		dispatcher:  dispatcher,
	}
}

// ComponentLogger creates a scoped logger for the given component.
// The receiver may be nil, in which case only the errorLogger is used.
func (d *Dispatcher) ComponentLogger(component string, errorLogger *ErrorLogger) *ComponentLogger {
	return &ComponentLogger{
		component:   component,
		errorLogger: errorLogger,
		dispatcher:  d,
	}
}

// Warnf logs a warning message.
func (l *ComponentLogger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.writeLocal(LevelWarn, msg)
	l.dispatch(LevelWarn, msg)
}

// Infof logs an informational message.
func (l *ComponentLogger) Infof(format string, args ...any) {
	if l == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.writeLocal(LevelInfo, msg)
	l.dispatch(LevelInfo, msg)
}

// Errorf logs an error message.
func (l *ComponentLogger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.writeLocal(LevelError, msg)
	l.dispatch(LevelError, msg)
}

// WithField returns a copy of l that attaches key/value to every entry it
// dispatches, without altering l itself. Used to correlate every log line
// from a single `run` invocation (e.g. a run_id) across components.
func (l *ComponentLogger) WithField(key string, value any) *ComponentLogger {
	if l == nil {
		return nil
	}
	fields := make(map[string]any, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields[key] = value
	return &ComponentLogger{
		component:   l.component,
		errorLogger: l.errorLogger,
		dispatcher:  l.dispatcher,
		fields:      fields,
	}
}

// writeLocal writes to the local ErrorLogger file.
func (l *ComponentLogger) writeLocal(level Level, msg string) {
	if l.errorLogger == nil {
		return
	}
	switch level {
	case LevelError:
		l.errorLogger.LogErrorf(l.component, "%s", msg)
	case LevelWarn:
		l.errorLogger.LogErrorf(l.component, "WARN %s", msg)
	default:
		l.errorLogger.LogErrorf(l.component, "INFO %s", msg)
	}
}

// dispatch sends the entry to remote backends via the Dispatcher.
func (l *ComponentLogger) dispatch(level Level, msg string) {
	if l.dispatcher == nil {
		return
	}
	fields := make(map[string]any, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields["component"] = l.component
	_ = l.dispatcher.Write(&Entry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg,
		Fields:    fields,
	})
}
