package logging

import (
	"fmt"

	"github.com/rs/zerolog"
)

// ZerologAdapter wraps a zerolog.Logger. Key/value args are attached as fields;
// a trailing odd arg is recorded under "arg".
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter creates a Logger from zerolog.Logger.
func NewZerologAdapter(l zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: l}
}

// With returns an adapter whose entries always carry args.
func (z *ZerologAdapter) With(args ...any) *ZerologAdapter {
	ctx := z.logger.With()
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			ctx = ctx.Interface("arg", args[i])
			break
		}
		ctx = ctx.Interface(fmt.Sprint(args[i]), args[i+1])
	}
	return &ZerologAdapter{logger: ctx.Logger()}
}

// Debug logs a debug message.
func (z *ZerologAdapter) Debug(msg string, args ...any) { emit(z.logger.Debug(), msg, args) }

// Info logs an informational message.
func (z *ZerologAdapter) Info(msg string, args ...any) { emit(z.logger.Info(), msg, args) }

// Warn logs a warning message.
func (z *ZerologAdapter) Warn(msg string, args ...any) { emit(z.logger.Warn(), msg, args) }

// Error logs an error message.
func (z *ZerologAdapter) Error(msg string, args ...any) { emit(z.logger.Error(), msg, args) }

func emit(ev *zerolog.Event, msg string, args []any) {
	if ev == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			ev = ev.Interface("arg", args[i])
			break
		}
		key := fmt.Sprint(args[i])
		switch v := args[i+1].(type) {
		case error:
			ev = ev.AnErr(key, v)
		case string:
			ev = ev.Str(key, v)
		case int:
			ev = ev.Int(key, v)
		case int64:
			ev = ev.Int64(key, v)
		case bool:
			ev = ev.Bool(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}

// ZerologLevel converts a LogLevel for zerolog.SetGlobalLevel.
func ZerologLevel(l LogLevel) zerolog.Level {
	switch l {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
