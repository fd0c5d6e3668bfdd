package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Level is the minimum severity a Logger writes
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel parses a level name, defaulting to info
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level: %q", name)
}

// Logger provides logging functionality
type Logger struct {
	file   *os.File
	logger *log.Logger
	level  Level
	echo   io.Writer
}

// NewLogger creates a new logger writing to logPath
func NewLogger(logPath string) (*Logger, error) {
	// Ensure directory exists
	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Open log file
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &Logger{
		file:   file,
		logger: log.New(file, "", log.LstdFlags),
		level:  LevelInfo,
	}, nil
}

// NewLoggerWithWriter creates a logger writing to w
func NewLoggerWithWriter(w io.Writer) *Logger {
	return &Logger{
		logger: log.New(w, "", log.LstdFlags),
		level:  LevelInfo,
	}
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() *Logger {
	return NewLoggerWithWriter(io.Discard)
}

// SetLevel sets the minimum level written
func (l *Logger) SetLevel(level Level) {
	l.level = level
}

// SetEcho mirrors every written line to w (nil disables)
func (l *Logger) SetEcho(w io.Writer) {
	l.echo = w
}

// Close closes the logger
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.write(LevelInfo, "[INFO] ", format, v...)
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.write(LevelError, "[ERROR] ", format, v...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.write(LevelDebug, "[DEBUG] ", format, v...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.write(LevelWarn, "[WARN] ", format, v...)
}

func (l *Logger) write(level Level, prefix, format string, v ...interface{}) {
	if level < l.level {
		return
	}
	msg := fmt.Sprintf(prefix+format, v...)
	l.logger.Println(msg)
	if l.echo != nil {
		fmt.Fprintln(l.echo, msg)
	}
}

// GetLogPath returns the default log path inside dir
func GetLogPath(dir string) string {
	if dir == "" {
		dir = filepath.Join(".", "logs")
	}
	return filepath.Join(dir, fmt.Sprintf("app-%s.log", time.Now().Format("2006-01-02")))
}
