package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLogger writes info and above to stderr.
var DefaultLogger Logger = NewZap(InfoLevel, os.Stderr)

// Zap implements Logger with zap as the underlying logging library.
type Zap struct {
	sugar *zap.SugaredLogger
	level Level
}

var _ Logger = (*Zap)(nil)

// NewZap builds a JSON logger writing to every writer at or above level.
func NewZap(level Level, writers ...io.Writer) *Zap {
	if len(writers) == 0 {
		writers = []io.Writer{os.Stderr}
	}
	syncers := make([]zapcore.WriteSyncer, 0, len(writers))
	for _, w := range writers {
		syncers = append(syncers, zapcore.AddSync(w))
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(syncers...),
		toZapLevel(level),
	)
	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Zap{sugar: logger.Sugar(), level: level}
}

// NewZapLogger wraps an already configured zap logger.
func NewZapLogger(logger *zap.Logger, level Level) *Zap {
	return &Zap{sugar: logger.WithOptions(zap.AddCallerSkip(1)).Sugar(), level: level}
}

func (z *Zap) Debug(v ...any)                 { z.sugar.Debug(v...) }
func (z *Zap) Debugf(format string, v ...any) { z.sugar.Debugf(format, v...) }
func (z *Zap) Info(v ...any)                  { z.sugar.Info(v...) }
func (z *Zap) Infof(format string, v ...any)  { z.sugar.Infof(format, v...) }
func (z *Zap) Warn(v ...any)                  { z.sugar.Warn(v...) }
func (z *Zap) Warnf(format string, v ...any)  { z.sugar.Warnf(format, v...) }
func (z *Zap) Error(v ...any)                 { z.sugar.Error(v...) }
func (z *Zap) Errorf(format string, v ...any) { z.sugar.Errorf(format, v...) }
func (z *Zap) LogLevel() Level                { return z.level }

func (z *Zap) With(key string, value any) Logger {
	return &Zap{sugar: z.sugar.With(key, value), level: z.level}
}

// Sync flushes any buffered entries.
func (z *Zap) Sync() error { return z.sugar.Sync() }

func toZapLevel(level Level) zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel:
		return zapcore.InfoLevel
	case WarningLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		// nothing is emitted above fatal
		return zapcore.FatalLevel + 1
	}
}
