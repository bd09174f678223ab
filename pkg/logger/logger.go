package logger

import (
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is a zerolog logger that records the calling site on every line
type Logger struct {
	zl zerolog.Logger
}

type Config struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json, console
	Output      io.Writer
	EnableColor bool
	Service     string // added as "service" on every line when set
}

var (
	mu     sync.RWMutex
	global *Logger
)

var levels = map[string]zerolog.Level{
	"debug": zerolog.DebugLevel,
	"info":  zerolog.InfoLevel,
	"warn":  zerolog.WarnLevel,
	"error": zerolog.ErrorLevel,
	"fatal": zerolog.FatalLevel,
}

// Initialize replaces the process-wide logger
func Initialize(cfg Config) {
	level, ok := levels[strings.ToLower(cfg.Level)]
	if !ok {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: !cfg.EnableColor}
	}

	zctx := zerolog.New(out).With().Timestamp()
	if cfg.Service != "" {
		zctx = zctx.Str("service", cfg.Service)
	}
	zl := zctx.Logger()

	mu.Lock()
	global = &Logger{zl: zl}
	mu.Unlock()
	log.Logger = zl
}

// Get returns the process-wide logger, creating a console logger on first use
func Get() *Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	Initialize(Config{Level: "info", Format: "console", EnableColor: true})
	mu.RLock()
	defer mu.RUnlock()
	return global
}

func (l *Logger) WithContext(fields map[string]interface{}) *Logger {
	return &Logger{zl: l.zl.With().Fields(fields).Logger()}
}

func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	write(l.zl.Debug(), msg, fields)
}

func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	write(l.zl.Info(), msg, fields)
}

func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	write(l.zl.Warn(), msg, fields)
}

func (l *Logger) Error(msg string, err error, fields ...map[string]interface{}) {
	write(l.zl.Error().Err(err), msg, fields)
}

// Fatal exits the process after writing the line
func (l *Logger) Fatal(msg string, err error, fields ...map[string]interface{}) {
	write(l.zl.Fatal().Err(err), msg, fields)
}

// write is always two frames below the code that logged.
func write(event *zerolog.Event, msg string, fields []map[string]interface{}) {
	if event == nil {
		return
	}
	if pc, file, line, ok := runtime.Caller(2); ok {
		event.Str("caller", zerolog.CallerMarshalFunc(pc, file, line))
	}
	for _, f := range fields {
		event.Fields(f)
	}
	event.Msg(msg)
}

func Debug(msg string, fields ...map[string]interface{}) {
	write(Get().zl.Debug(), msg, fields)
}

func Info(msg string, fields ...map[string]interface{}) {
	write(Get().zl.Info(), msg, fields)
}

func Warn(msg string, fields ...map[string]interface{}) {
	write(Get().zl.Warn(), msg, fields)
}

func Error(msg string, err error, fields ...map[string]interface{}) {
	write(Get().zl.Error().Err(err), msg, fields)
}

func Fatal(msg string, err error, fields ...map[string]interface{}) {
	write(Get().zl.Fatal().Err(err), msg, fields)
}

func WithContext(fields map[string]interface{}) *Logger {
	return Get().WithContext(fields)
}
