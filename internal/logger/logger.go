package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

var Logger *log.Logger

var (
	mu         sync.Mutex
	components []*log.Logger
)

func init() {
	Logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})

	// Set log level from environment variable
	if err := SetLevel(os.Getenv("LOG_LEVEL")); err != nil {
		Logger.SetLevel(log.InfoLevel)
	}
}

// SetLevel changes the global level. An empty string keeps INFO.
func SetLevel(level string) error {
	var lvl log.Level
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		lvl = log.DebugLevel
	case "", "INFO":
		lvl = log.InfoLevel
	case "WARN", "WARNING":
		lvl = log.WarnLevel
	case "ERROR":
		lvl = log.ErrorLevel
	case "FATAL":
		lvl = log.FatalLevel
	default:
		return fmt.Errorf("unknown log level %q", level)
	}

	mu.Lock()
	defer mu.Unlock()
	Logger.SetLevel(lvl)
	for _, c := range components {
		c.SetLevel(lvl)
	}
	return nil
}

func setOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	Logger.SetOutput(w)
	for _, c := range components {
		c.SetOutput(w)
	}
}

// SetFile mirrors log output into the given file. The returned closer
// restores stderr-only logging.
func SetFile(path string) (io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	setOutput(io.MultiWriter(os.Stderr, f))
	return closerFunc(func() error {
		setOutput(os.Stderr)
		return f.Close()
	}), nil
}

type closerFunc func() error

func (c closerFunc) Close() error { return c() }

// Component returns a child logger that prefixes every line with name. It
// follows later level and output changes.
func Component(name string) *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	c := Logger.WithPrefix(name)
	components = append(components, c)
	return c
}

// Convenience functions for common operations
func Info(msg interface{}, keyvals ...interface{}) {
	Logger.Info(msg, keyvals...)
}

func Debug(msg interface{}, keyvals ...interface{}) {
	Logger.Debug(msg, keyvals...)
}

func Warn(msg interface{}, keyvals ...interface{}) {
	Logger.Warn(msg, keyvals...)
}

func Error(msg interface{}, keyvals ...interface{}) {
	Logger.Error(msg, keyvals...)
}

func Fatal(msg interface{}, keyvals ...interface{}) {
	Logger.Fatal(msg, keyvals...)
}

func Infof(format string, args ...interface{}) {
	Logger.Infof(format, args...)
}

func Debugf(format string, args ...interface{}) {
	Logger.Debugf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	Logger.Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	Logger.Errorf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	Logger.Fatalf(format, args...)
}
