// Package logging provides the structured logger threaded through every
// monoslam component, in the style of go.viam.com/rdk/logging: a small
// interface backed by zap, with named sub-loggers instead of global state.
package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging surface every monoslam constructor accepts. It never
// changes control flow on its own -- every decision a caller needs is also
// returned as a typed value; logging is purely observational.
type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Sublogger(name string) Logger
}

type zapLogger struct {
	sugar *zap.SugaredLogger
	name  string
}

// NewLogger builds a production logger writing leveled, JSON-less console
// output under the given root name.
func NewLogger(name string) Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.TimeKey = ""
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// zap.NewDevelopmentConfig().Build only fails on a malformed encoder
		// config, which this literal never produces.
		panic(err)
	}
	return &zapLogger{sugar: z.Sugar().Named(name), name: name}
}

// NewTestLogger returns a Logger that writes through t.Log, matching the
// logging.NewTestLogger(t) convention used throughout the teacher's tests.
func NewTestLogger(t *testing.T) Logger {
	t.Helper()
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(&testWriter{t: t}),
		zapcore.DebugLevel,
	)
	z := zap.New(core)
	return &zapLogger{sugar: z.Sugar().Named(t.Name()), name: t.Name()}
}

type testWriter struct{ t *testing.T }

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

func (l *zapLogger) Debugf(template string, args ...interface{}) { l.sugar.Debugf(template, args...) }
func (l *zapLogger) Infof(template string, args ...interface{})  { l.sugar.Infof(template, args...) }
func (l *zapLogger) Warnf(template string, args ...interface{})  { l.sugar.Warnf(template, args...) }
func (l *zapLogger) Errorf(template string, args ...interface{}) { l.sugar.Errorf(template, args...) }

func (l *zapLogger) Sublogger(name string) Logger {
	return &zapLogger{sugar: l.sugar.Named(name), name: l.name + "." + name}
}
