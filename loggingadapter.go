package promise

import (
	"github.com/joeycumines/logiface"
)

// simpleEvent is a minimal logiface.Event implementation that buffers a
// field map for forwarding into this package's own Logger interface.
// Grounded on the mockSimpleEvent pattern used by the teacher's logiface
// package test suite (logger_test.go), trimmed to only the mandatory
// Event methods (Level, AddField) plus AddMessage.
type simpleEvent struct {
	logiface.UnimplementedEvent
	level  logiface.Level
	msg    string
	fields map[string]any
}

func (e *simpleEvent) Level() logiface.Level { return e.level }

func (e *simpleEvent) AddField(key string, val any) {
	if e.fields == nil {
		e.fields = make(map[string]any)
	}
	e.fields[key] = val
}

func (e *simpleEvent) AddMessage(msg string) bool {
	e.msg = msg
	return true
}

func logifaceToLevel(l LogLevel) logiface.Level {
	switch l {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	case LevelWarn:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}

func levelFromLogiface(l logiface.Level) LogLevel {
	switch l {
	case logiface.LevelDebug:
		return LevelDebug
	case logiface.LevelWarning:
		return LevelWarn
	case logiface.LevelError, logiface.LevelEmergency, logiface.LevelAlert, logiface.LevelCritical:
		return LevelError
	default:
		return LevelInfo
	}
}

// logifaceLogger adapts a *logiface.Logger[*simpleEvent] into this
// package's Logger interface, playing the same bridging role the teacher's
// own test suite exercises (coverage_extra_test.go, coverage_phase2_test.go)
// when adapting the package's plain Logger to logiface's Event model.
type logifaceLogger struct {
	inner *logiface.Logger[*simpleEvent]
}

// FromLogiface adapts a *logiface.Logger[*simpleEvent] so it can be used as
// this package's [Logger]; [NewLogifaceLogger] builds such a logger and
// wraps it. Loggers over other event types are not accepted.
func FromLogiface(inner *logiface.Logger[*simpleEvent]) Logger {
	return &logifaceLogger{inner: inner}
}

// NewLogifaceLogger builds a logiface-backed [Logger] that writes through
// sink, a caller-supplied forwarding function receiving the level, message
// and fields of each event. This lets callers plug in any real logiface
// writer (zerolog, slog, stumpy, ...) for the final sink while this
// package's diagnostics flow through logiface's Builder/Event pipeline.
func NewLogifaceLogger(min LogLevel, sink func(level LogLevel, msg string, fields map[string]any)) Logger {
	factory := logiface.NewEventFactoryFunc(func(level logiface.Level) *simpleEvent {
		return &simpleEvent{level: level}
	})
	writer := logiface.NewWriterFunc(func(e *simpleEvent) error {
		if sink != nil {
			sink(levelFromLogiface(e.level), e.msg, e.fields)
		}
		return nil
	})
	l := logiface.New[*simpleEvent](
		logiface.WithLevel[*simpleEvent](logifaceToLevel(min)),
		logiface.WithEventFactory[*simpleEvent](factory),
		logiface.WithWriter[*simpleEvent](writer),
	)
	return FromLogiface(l)
}

// Log implements [Logger] by driving the wrapped logiface.Logger's
// non-fluent Log method with a modifier that copies msg and fields onto
// the event.
func (a *logifaceLogger) Log(level LogLevel, msg string, fields map[string]any) {
	if a == nil || a.inner == nil {
		return
	}
	_ = a.inner.Log(logifaceToLevel(level), logiface.ModifierFunc[*simpleEvent](func(e *simpleEvent) error {
		e.AddMessage(msg)
		for k, v := range fields {
			e.AddField(k, v)
		}
		return nil
	}))
}
