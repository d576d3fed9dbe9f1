package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
)

func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type Logger struct {
	service string
	level   Level
	fields  map[string]any
	out     io.Writer
	mu      *sync.Mutex
}

func New(service string) *Logger {
	return &Logger{service: service, level: LevelInfo, out: os.Stdout, mu: &sync.Mutex{}}
}

// Nop discards everything; used where a caller passes no logger.
func Nop() *Logger {
	l := New("")
	l.out = io.Discard
	return l
}

func (l *Logger) SetLevel(lv Level) *Logger { l.level = lv; return l }

func (l *Logger) SetOutput(w io.Writer) *Logger { l.out = w; return l }

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields map[string]any) *Logger {
	merged := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{service: l.service, level: l.level, fields: merged, out: l.out, mu: l.mu}
}

func (l *Logger) log(lv Level, level, action, msg string, fields map[string]any, err error) {
	if l == nil || lv < l.level {
		return
	}
	entry := map[string]any{
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		"level":      level,
		"service":    l.service,
		"action":     action,
		"message":    msg,
		"hostname":   hostname(),
		"request_id": "",
	}
	for k, v := range l.fields {
		entry[k] = v
	}
	for k, v := range fields {
		entry[k] = v
	}
	if err != nil {
		entry["error"] = map[string]any{"msg": err.Error(), "type": fmt.Sprintf("%T", err)}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = json.NewEncoder(l.out).Encode(entry)
}

func (l *Logger) Info(action string, fields map[string]any) {
	l.log(LevelInfo, "INFO", action, action, fields, nil)
}

func (l *Logger) Debug(action string, fields map[string]any) {
	l.log(LevelDebug, "DEBUG", action, action, fields, nil)
}

func (l *Logger) Error(action string, err error, fields map[string]any) {
	l.log(LevelError, "ERROR", action, action, fields, err)
}

var (
	hostOnce sync.Once
	hostName string
)

func hostname() string {
	hostOnce.Do(func() { hostName, _ = os.Hostname() })
	return hostName
}
