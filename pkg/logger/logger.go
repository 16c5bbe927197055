package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the log level, encoding, and destination.
type Config struct {
	Level  string // debug, info, warn or error; empty means info
	Format string // console or json
	Output string // stdout, stderr or a file path
}

// Logger wraps zerolog behind a small field-based API. An optional digest
// collector batches error lines for the job queue.
type Logger struct {
	zl        zerolog.Logger
	collector *logCollector
}

// New builds a logger. The level applies to this instance only, not to the
// zerolog global.
func New(cfg *Config) (*Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}

	zl := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		CallerWithSkipFrameCount(4).
		Logger()
	return &Logger{zl: zl}, nil
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(l.zl.Debug(), msg, fields) }

func (l *Logger) Info(msg string, fields ...Field) { l.log(l.zl.Info(), msg, fields) }

func (l *Logger) Warn(msg string, fields ...Field) { l.log(l.zl.Warn(), msg, fields) }

// Error also feeds the digest collector when one is attached.
func (l *Logger) Error(msg string, fields ...Field) {
	l.log(l.zl.Error(), msg, fields)
	l.collect(msg, fields)
}

func (l *Logger) log(e *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		f.write(e)
	}
	e.Msg(msg)
}

// AddCollector attaches an error digest collector, replacing any active one.
func (l *Logger) AddCollector(cfg *CollectionConfig) {
	if l.collector != nil {
		l.collector.Close()
	}
	l.collector = newLogCollector(cfg)
}

// RemoveCollector flushes whatever is pending and detaches the collector.
func (l *Logger) RemoveCollector() {
	if l.collector != nil {
		l.collector.Close()
		l.collector = nil
	}
}

func (l *Logger) collect(msg string, fields []Field) {
	if l.collector == nil {
		return
	}
	// frames: collect -> Error -> caller
	_, file, line, ok := runtime.Caller(2)
	caller := "unknown"
	if ok {
		caller = trimModulePath(file) + ":" + strconv.Itoa(line)
	}
	kv := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		kv[f.Key] = f.value()
	}
	l.collector.record("error", msg, kv, caller)
}

func trimModulePath(file string) string {
	if _, rest, ok := strings.Cut(file, "SolSignal/"); ok {
		return rest
	}
	return file
}

// Field is one structured key/value pair attached to a log line.
type Field struct {
	Key   string
	Value interface{}
}

func (f Field) write(e *zerolog.Event) {
	switch v := f.Value.(type) {
	case string:
		e.Str(f.Key, v)
	case int:
		e.Int(f.Key, v)
	case int64:
		e.Int64(f.Key, v)
	case float64:
		e.Float64(f.Key, v)
	case time.Duration:
		e.Dur(f.Key, v)
	case error:
		e.AnErr(f.Key, v)
	default:
		e.Interface(f.Key, v)
	}
}

// value flattens typed values into something the digest can serialize.
func (f Field) value() interface{} {
	switch v := f.Value.(type) {
	case error:
		if v == nil {
			return nil
		}
		return v.Error()
	case time.Duration:
		return v.String()
	default:
		return f.Value
	}
}

func String(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

func Strings(key string, values []string) Field {
	return Field{Key: key, Value: strings.Join(values, ",")}
}

func Error(err error) Field { return Field{Key: "error", Value: err} }
