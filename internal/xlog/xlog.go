// Package xlog is the four-level logging taxonomy the original Logger.h
// macros provided (INFO/ERROR/FATAL/DEBUG), rebuilt over logrus instead of
// a hand-rolled singleton.
package xlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var std = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	if os.Getenv("NNET_DEBUG") != "" {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// SetLevel lets callers raise or lower verbosity at runtime.
func SetLevel(level logrus.Level) {
	std.SetLevel(level)
}

func Debugf(format string, args ...interface{}) { std.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { std.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { std.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { std.Errorf(format, args...) }

// Fatalf logs and terminates the process, matching LOG_FATAL's exit(-1).
func Fatalf(format string, args ...interface{}) { std.Fatalf(format, args...) }
