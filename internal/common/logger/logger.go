package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger is a small leveled logger shared by all services and workers.
// The minimum level is taken from LOG_LEVEL (debug, info, warn, error).
type Logger struct {
	name  string
	level Level
	out   *log.Logger
}

func New(name string) *Logger {
	return &Logger{
		name:  name,
		level: levelFromEnv(),
		out:   log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds),
	}
}

func levelFromEnv() Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
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

func (l *Logger) log(level Level, tag, msg string) {
	if level < l.level {
		return
	}
	l.out.Printf("[%s] [%s] %s", tag, l.name, msg)
}

func (l *Logger) Debug(msg string) { l.log(LevelDebug, "DEBUG", msg) }
func (l *Logger) Info(msg string)  { l.log(LevelInfo, "INFO", msg) }
func (l *Logger) Warn(msg string)  { l.log(LevelWarn, "WARN", msg) }
func (l *Logger) Error(msg string) { l.log(LevelError, "ERROR", msg) }

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(LevelDebug, "DEBUG", fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(LevelInfo, "INFO", fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(LevelWarn, "WARN", fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(LevelError, "ERROR", fmt.Sprintf(format, args...))
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.out.Printf("[FATAL] [%s] %s", l.name, fmt.Sprintf(format, args...))
	os.Exit(1)
}
