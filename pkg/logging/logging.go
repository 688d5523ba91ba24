package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// LogLevel defines the severity of a log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a --log-level flag value to a LogLevel. Unknown values
// fall back to info.
func ParseLevel(s string) LogLevel {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Entry is the structured log record handed to the TUI when channel mode is
// active. While the alternate screen is up, writing to stderr would corrupt
// the display, so entries are buffered on a channel the TUI drains instead.
type Entry struct {
	Timestamp time.Time
	Level     LogLevel
	Subsystem string
	Message   string
	Err       error
}

const channelBufferSize = 2048

var (
	mu          sync.Mutex
	logger      *slog.Logger
	filterLevel LogLevel
	tuiChannel  chan Entry
	tuiMode     bool
)

// InitForCLI routes log entries directly to the given writer.
func InitForCLI(level LogLevel, output io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	filterLevel = level
	tuiMode = false
	tuiChannel = nil
	logger = slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: level.slogLevel()}))
}

// InitForTUI routes log entries onto a buffered channel for the TUI to
// render. The returned channel is closed by CloseTUIChannel on shutdown.
func InitForTUI(level LogLevel) <-chan Entry {
	mu.Lock()
	defer mu.Unlock()
	filterLevel = level
	tuiMode = true
	tuiChannel = make(chan Entry, channelBufferSize)
	return tuiChannel
}

// CloseTUIChannel closes the TUI log channel. Call once on shutdown, after
// the TUI has stopped draining.
func CloseTUIChannel() {
	mu.Lock()
	defer mu.Unlock()
	if tuiChannel != nil {
		close(tuiChannel)
		tuiChannel = nil
		tuiMode = false
	}
}

func logInternal(level LogLevel, subsystem string, err error, format string, args ...interface{}) {
	mu.Lock()
	if level < filterLevel {
		mu.Unlock()
		return
	}
	ch := tuiChannel
	inTUI := tuiMode
	l := logger
	mu.Unlock()

	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}

	if inTUI {
		entry := Entry{Timestamp: time.Now(), Level: level, Subsystem: subsystem, Message: msg, Err: err}
		select {
		case ch <- entry:
		default:
			// Buffer full: drop rather than block a component on the render loop.
		}
		return
	}

	if l == nil {
		fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", level, subsystem, msg)
		return
	}
	attrs := []slog.Attr{slog.String("subsystem", subsystem)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.LogAttrs(context.Background(), level.slogLevel(), msg, attrs...)
}

// Debug logs a debug message for the given subsystem.
func Debug(subsystem, format string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, format, args...)
}

// Info logs an informational message for the given subsystem.
func Info(subsystem, format string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, format, args...)
}

// Warn logs a warning message for the given subsystem.
func Warn(subsystem, format string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, format, args...)
}

// Error logs an error with an optional wrapped cause.
func Error(subsystem string, err error, format string, args ...interface{}) {
	logInternal(LevelError, subsystem, err, format, args...)
}
