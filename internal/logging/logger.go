package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorWhite  = "\033[97m"
)

// Log levels
const (
	LevelCrit   = iota // 0 - bridge cannot continue
	LevelError         // 1 - errors (non-fatal but important)
	LevelWarn          // 2 - warnings, dropped persistence, degraded features
	LevelNotice        // 3 - startup, shutdown, config
	LevelInfo          // 4 - session and upstream state changes
	LevelDebug         // 5 - raw upstream lines, HTTP requests
)

var (
	// Logger is the package-level logger used across the bridge.
	Logger = log.New(os.Stdout, "", 0)
	// Level controls verbosity. NOTICE keeps per-session chatter out of production logs.
	Level      = LevelNotice
	UseColors  = true
	TimeFormat = "Jan 02 15:04:05.000"
)

var levelNames = map[string]int{
	"crit": LevelCrit, "critical": LevelCrit, "crt": LevelCrit,
	"error": LevelError, "err": LevelError,
	"warn": LevelWarn, "warning": LevelWarn, "wrn": LevelWarn,
	"notice": LevelNotice, "not": LevelNotice,
	"info": LevelInfo, "inf": LevelInfo,
	"debug": LevelDebug, "dbg": LevelDebug,
}

// SetLevel sets the logger verbosity level.
func SetLevel(l int) {
	Level = l
}

// ParseLevel maps a LOG_LEVEL value (name, abbreviation or digit 0-5) to a level.
func ParseLevel(s string) (int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if l, ok := levelNames[s]; ok {
		return l, true
	}
	if n, err := strconv.Atoi(s); err == nil && n >= LevelCrit && n <= LevelDebug {
		return n, true
	}
	return 0, false
}

// LevelName returns the upper-case name of a level.
func LevelName(l int) string {
	switch l {
	case LevelCrit:
		return "CRIT"
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelNotice:
		return "NOTICE"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	}
	return fmt.Sprintf("LEVEL(%d)", l)
}

// SetOutput sets the output destination for logs
func SetOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// DisableColors disables color output
func DisableColors() {
	UseColors = false
}

// formatLog formats a log message with timestamp, colored 3-letter level and message.
// Cluster text is user-controlled, so the message is sanitized against log forging.
func formatLog(levelAbbrev, color, message string) string {
	timestamp := time.Now().Format(TimeFormat)
	sanitized := sanitizeLogMessage(message)

	if UseColors {
		return fmt.Sprintf("%s %s%s%s %s", timestamp, color, levelAbbrev, colorReset, sanitized)
	}
	return fmt.Sprintf("%s %s %s", timestamp, levelAbbrev, sanitized)
}

var logSanitizer = strings.NewReplacer(
	"\n", "\\n",
	"\r", "\\r",
	"\t", "\\t",
)

func sanitizeLogMessage(msg string) string {
	return logSanitizer.Replace(msg)
}

func emit(level int, abbrev, color, format string, v ...interface{}) {
	if Level >= level {
		Logger.Print(formatLog(abbrev, color, fmt.Sprintf(format, v...)))
	}
}

// Crit logs critical errors (application should stop)
func Crit(format string, v ...interface{}) {
	emit(LevelCrit, "CRT", colorRed, format, v...)
}

// Error logs error-level messages (non-fatal but important)
func Error(format string, v ...interface{}) {
	emit(LevelError, "ERR", colorRed, format, v...)
}

// Warn logs warning-level messages
func Warn(format string, v ...interface{}) {
	emit(LevelWarn, "WRN", colorYellow, format, v...)
}

// Notice logs important informational messages (startup, config, shutdown)
func Notice(format string, v ...interface{}) {
	emit(LevelNotice, "NOT", colorCyan, format, v...)
}

// Info logs general informational messages
func Info(format string, v ...interface{}) {
	emit(LevelInfo, "INF", colorWhite, format, v...)
}

// Debug logs very verbose diagnostic messages
func Debug(format string, v ...interface{}) {
	emit(LevelDebug, "DBG", colorGray, format, v...)
}
