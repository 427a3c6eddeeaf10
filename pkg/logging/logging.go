// Package logging provides the process-wide zap logger used by every
// facilityobs package.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

var (
	base  = zap.NewNop()
	sugar = base.Sugar()
)

// Init replaces the package logger. Development mode is used when debug is set.
func Init(debug bool) error {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	} else {
		l, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %w", err)
	}

	base = l
	sugar = l.Sugar()
	return nil
}

// SetLogger installs an already-built logger (tests use zaptest/observer).
func SetLogger(l *zap.Logger) {
	base = l.WithOptions(zap.AddCallerSkip(1))
	sugar = base.Sugar()
}

// Logger returns the underlying structured logger.
func Logger() *zap.Logger {
	return base
}

// Sync flushes any buffered log entries.
func Sync() {
	_ = sugar.Sync()
}

func Debugf(template string, args ...interface{}) {
	sugar.Debugf(template, args...)
}

func Debugw(msg string, keysAndValues ...interface{}) {
	sugar.Debugw(msg, keysAndValues...)
}

func Info(args ...interface{}) {
	sugar.Info(args...)
}

func Infof(template string, args ...interface{}) {
	sugar.Infof(template, args...)
}

func Infow(msg string, keysAndValues ...interface{}) {
	sugar.Infow(msg, keysAndValues...)
}

func Warnf(template string, args ...interface{}) {
	sugar.Warnf(template, args...)
}

func Warnw(msg string, keysAndValues ...interface{}) {
	sugar.Warnw(msg, keysAndValues...)
}

func Errorf(template string, args ...interface{}) {
	sugar.Errorf(template, args...)
}

func Errorw(msg string, keysAndValues ...interface{}) {
	sugar.Errorw(msg, keysAndValues...)
}

// Fatalf logs and exits the process.
func Fatalf(template string, args ...interface{}) {
	sugar.Fatalf(template, args...)
}
