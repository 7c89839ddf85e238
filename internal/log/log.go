// Package log provides the process-wide logger backed by logrus.
package log

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"firestige.xyz/tanakai/internal/config"
)

type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsDebugEnabled() bool
}

const (
	defaultPattern    = "%time [%level] %field %msg%n"
	defaultTimeFormat = "2006-01-02 15:04:05.000"
)

var current atomic.Pointer[logrusAdapter]

func init() {
	l := logrus.New()
	l.SetFormatter(&formatter{pattern: defaultPattern, time: defaultTimeFormat})
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	current.Store(&logrusAdapter{entry: logrus.NewEntry(l)})
}

// GetLogger returns the active logger. It is usable before Init.
func GetLogger() Logger {
	return current.Load()
}

// Init replaces the active logger according to cfg.
func Init(cfg config.LogConfig) error {
	adapter, err := initByConfig(cfg)
	if err != nil {
		return err
	}
	current.Store(adapter)
	return nil
}

func parseLevel(level string) (logrus.Level, error) {
	if level == "" {
		return logrus.InfoLevel, nil
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}
