// Package logging provides the level-gated structured logger used
// throughout ssmergerd. It wraps a zap core over a rolling file sink so
// every component logs through one ISsmLogger-shaped interface
// (Logger below) without depending on zap directly.
package logging

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Level is the gating level for a log record. Order matches
// spec.md §4.2: trace < debug < normal < warning < error; none
// suppresses everything and is never itself emitted.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelNormal
	LevelWarning
	LevelError
	LevelNone
)

// ParseLevel converts a settings.yml `logging.level` string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "normal", "info":
		return LevelNormal, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	case "none":
		return LevelNone, nil
	default:
		return LevelNone, fmt.Errorf("unknown logging level %q", s)
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelTrace, LevelDebug:
		return zapcore.DebugLevel
	case LevelNormal:
		return zapcore.InfoLevel
	case LevelWarning:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// KV is one ordered context key/value pair attached to a record.
type KV struct {
	Key   string
	Value any
}

// F builds a KV pair; short name kept close to call sites since every
// log call site in this codebase builds several of these.
func F(key string, value any) KV {
	return KV{Key: key, Value: value}
}

// RollingConfig configures the rotating file sink.
type RollingConfig struct {
	Directory      string
	FileName       string
	MaxSizeMB      int
	MaxBackups     int
	CompressOldest bool
}

// Logger is the structured, level-gated logger every component depends
// on (ISsmLogger in spec.md's design notes). It is constructed once at
// host startup and passed by construction to every collaborator; there
// is no global logger.
type Logger struct {
	level    Level
	zl       *zap.Logger
	fallback func(line string)
}

var keySanitizer = regexp.MustCompile(`[^A-Za-z0-9_]`)

// New builds a Logger writing structured records to a rolling file at
// rolling.Directory/rolling.FileName, gated at level. fallback receives
// a single pre-formatted "logging_failure" line if writing a record
// panics or the primary sink fails to flush in Sync; fallback itself
// must never panic, and its own
// errors are swallowed (never propagated) per spec.md §7.
func New(level Level, rolling RollingConfig, fallback func(line string)) *Logger {
	sink := &lumberjack.Logger{
		Filename:   rolling.Directory + "/" + rolling.FileName,
		MaxSize:    rolling.MaxSizeMB,
		MaxBackups: rolling.MaxBackups,
		Compress:   rolling.CompressOldest,
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(sink),
		zap.NewAtomicLevelAt(level.zapLevel()),
	)

	if fallback == nil {
		fallback = func(string) {}
	}

	return &Logger{
		level:    level,
		zl:       zap.New(core),
		fallback: fallback,
	}
}

// Sync flushes the underlying sink. Call on shutdown.
func (l *Logger) Sync() {
	if l == nil || l.zl == nil {
		return
	}
	if err := l.zl.Sync(); err != nil {
		l.fallback(fmt.Sprintf(`event_id="logging_failure" message="flushing log sink failed" error="%v"`, err))
	}
}

// Log emits a record at level with the given event id, message, and
// ordered context. Level none is never emitted; attempting to log at
// none is a no-op. Keys that don't match [A-Za-z0-9_] are substituted
// with "_"; values are stringified and quote/newline-escaped.
func (l *Logger) Log(level Level, eventID, message string, kvs ...KV) {
	if l == nil || level == LevelNone || level < l.level {
		return
	}
	if eventID == "" || message == "" {
		// Programmer-error guard: every record must carry a non-empty
		// event id and message. Fail loud in logs rather than emit a
		// malformed record.
		eventID = "logging.invalid_record"
		message = "Log called with empty event_id or message"
	}

	defer func() {
		if r := recover(); r != nil {
			l.fallback(fmt.Sprintf(`event_id="logging_failure" message="panic writing log record" recovered="%v"`, r))
		}
	}()

	fields := make([]zap.Field, 0, len(kvs)+1)
	fields = append(fields, zap.String("event_id", eventID))
	for _, kv := range kvs {
		key := keySanitizer.ReplaceAllString(kv.Key, "_")
		fields = append(fields, zap.String(key, escapeValue(kv.Value)))
	}

	ce := l.zl.Check(level.zapLevel(), message)
	if ce == nil {
		return
	}
	ce.Time = time.Now().UTC()
	ce.Write(fields...)
}

func escapeValue(v any) string {
	s := fmt.Sprintf("%v", v)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}

// Trace, Debug, Normal, Warning, Error are thin convenience wrappers
// over Log for the five emittable levels.
func (l *Logger) Trace(eventID, message string, kvs ...KV)   { l.Log(LevelTrace, eventID, message, kvs...) }
func (l *Logger) Debug(eventID, message string, kvs ...KV)   { l.Log(LevelDebug, eventID, message, kvs...) }
func (l *Logger) Normal(eventID, message string, kvs ...KV)  { l.Log(LevelNormal, eventID, message, kvs...) }
func (l *Logger) Warning(eventID, message string, kvs ...KV) { l.Log(LevelWarning, eventID, message, kvs...) }
func (l *Logger) Error(eventID, message string, kvs ...KV)   { l.Log(LevelError, eventID, message, kvs...) }
