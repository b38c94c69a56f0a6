// logger/logger.go
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[LogLevel]string{
	DEBUG: "[DEBUG] ",
	INFO:  "[INFO]  ",
	WARN:  "[WARN]  ",
	ERROR: "[ERROR] ",
}

var levelColors = map[LogLevel]string{
	DEBUG: colorGray,
	INFO:  colorReset,
	WARN:  colorYellow,
	ERROR: colorRed,
}

type Logger struct {
	colored  map[LogLevel]*log.Logger
	plain    map[LogLevel]*log.Logger
	file     *os.File
	console  io.Writer
	out      io.Writer
	minLevel LogLevel
}

var (
	defaultLogger *Logger
	once          sync.Once
	mu            sync.RWMutex
)

// ensureInitialized creates a default logger if one doesn't exist
func ensureInitialized() {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if defaultLogger == nil {
			defaultLogger = &Logger{console: os.Stdout, minLevel: DEBUG}
			defaultLogger.setupLoggers()
		}
	})
}

// Init initializes the logger with optional file and console output
// If filename is empty, logs only to console
// If console is false, logs only to file
func Init(filename string, console bool) error {
	once.Do(func() {})
	mu.Lock()
	defer mu.Unlock()

	level := DEBUG
	if defaultLogger != nil {
		level = defaultLogger.minLevel
		if defaultLogger.file != nil {
			defaultLogger.file.Close()
		}
	}

	l := &Logger{minLevel: level}

	if filename != "" {
		file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = file
		l.out = file
	}

	if console {
		l.console = os.Stdout
	}

	if l.out == nil && l.console == nil {
		return fmt.Errorf("no output destination specified")
	}

	l.setupLoggers()
	defaultLogger = l
	return nil
}

// SetOutput sends uncolored output to w only. Used by tests to capture logs.
func SetOutput(w io.Writer) {
	once.Do(func() {})
	mu.Lock()
	defer mu.Unlock()

	level := DEBUG
	if defaultLogger != nil {
		level = defaultLogger.minLevel
	}
	defaultLogger = &Logger{out: w, minLevel: level}
	defaultLogger.setupLoggers()
}

// SetLevel sets the minimum log level (DEBUG, INFO, WARN, ERROR)
// Messages below this level will not be logged
func SetLevel(level LogLevel) {
	ensureInitialized()
	mu.Lock()
	defer mu.Unlock()
	defaultLogger.minLevel = level
}

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" to a level.
// Unknown names return INFO and false.
func ParseLevel(name string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DEBUG, true
	case "info", "":
		return INFO, true
	case "warn", "warning":
		return WARN, true
	case "error":
		return ERROR, true
	}
	return INFO, false
}

func (l *Logger) setupLoggers() {
	flags := log.Ldate | log.Ltime | log.Lshortfile
	l.colored = make(map[LogLevel]*log.Logger)
	l.plain = make(map[LogLevel]*log.Logger)

	for level, name := range levelNames {
		if l.console != nil {
			l.colored[level] = log.New(l.console, levelColors[level]+name+colorReset, flags)
		}
		if l.out != nil {
			l.plain[level] = log.New(l.out, name, flags)
		}
	}
}

// Close closes the log file if one is open
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if defaultLogger != nil && defaultLogger.file != nil {
		defaultLogger.file.Close()
		defaultLogger.file = nil
		defaultLogger.out = nil
		defaultLogger.setupLoggers()
	}
}

// output writes msg at level; depth is the number of frames between the
// caller of interest and this function.
func output(level LogLevel, depth int, msg string) {
	ensureInitialized()
	mu.RLock()
	defer mu.RUnlock()

	l := defaultLogger
	if level < l.minLevel {
		return
	}
	if c := l.colored[level]; c != nil {
		c.Output(depth+2, msg)
	}
	if p := l.plain[level]; p != nil {
		p.Output(depth+2, msg)
	}
}

// Debug logs a debug message
func Debug(v ...interface{}) { output(DEBUG, 1, fmt.Sprint(v...)) }

// Debugf logs a formatted debug message
func Debugf(format string, v ...interface{}) { output(DEBUG, 1, fmt.Sprintf(format, v...)) }

// Info logs an info message
func Info(v ...interface{}) { output(INFO, 1, fmt.Sprint(v...)) }

// Infof logs a formatted info message
func Infof(format string, v ...interface{}) { output(INFO, 1, fmt.Sprintf(format, v...)) }

// Warn logs a warning message
func Warn(v ...interface{}) { output(WARN, 1, fmt.Sprint(v...)) }

// Warnf logs a formatted warning message
func Warnf(format string, v ...interface{}) { output(WARN, 1, fmt.Sprintf(format, v...)) }

// Error logs an error message
func Error(v ...interface{}) { output(ERROR, 1, fmt.Sprint(v...)) }

// Errorf logs a formatted error message
func Errorf(format string, v ...interface{}) { output(ERROR, 1, fmt.Sprintf(format, v...)) }

// Fatal logs an error message and exits the program
func Fatal(v ...interface{}) {
	output(ERROR, 1, fmt.Sprint(v...))
	os.Exit(1)
}

// Fatalf logs a formatted error message and exits the program
func Fatalf(format string, v ...interface{}) {
	output(ERROR, 1, fmt.Sprintf(format, v...))
	os.Exit(1)
}

// Request prefixes every message with the request ID
type Request struct {
	prefix string
}

// ForRequest returns a logger that tags lines with [id]
func ForRequest(id string) Request {
	return Request{prefix: "[" + id + "] "}
}

func (r Request) Debugf(format string, v ...interface{}) {
	output(DEBUG, 1, r.prefix+fmt.Sprintf(format, v...))
}

func (r Request) Infof(format string, v ...interface{}) {
	output(INFO, 1, r.prefix+fmt.Sprintf(format, v...))
}

func (r Request) Warnf(format string, v ...interface{}) {
	output(WARN, 1, r.prefix+fmt.Sprintf(format, v...))
}

func (r Request) Errorf(format string, v ...interface{}) {
	output(ERROR, 1, r.prefix+fmt.Sprintf(format, v...))
}
