package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu           sync.RWMutex
	currentLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar        = newSugar("text", zapcore.Lock(os.Stdout))

	// outFile is the file behind sugar, nil for stdout and stderr.
	outFile *os.File
)

func (l Level) String() string {
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

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel converts a level name (case-insensitive) to a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// SetLevel changes the minimum level. Unknown names are ignored.
func SetLevel(level string) {
	l, err := ParseLevel(level)
	if err != nil {
		return
	}
	currentLevel.SetLevel(l.zapLevel())
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	switch currentLevel.Level() {
	case zapcore.DebugLevel:
		return LevelDebug
	case zapcore.WarnLevel:
		return LevelWarn
	case zapcore.ErrorLevel:
		return LevelError
	default:
		return LevelInfo
	}
}

// Configure replaces the global logger.
//
// Parameters:
//   - level: DEBUG, INFO, WARN or ERROR
//   - format: "text" (console encoder) or "json"
//   - output: "stdout", "stderr" or a file path (opened in append mode)
//
// A file opened by an earlier call is flushed and closed once the new
// logger is in place.
func Configure(level, format, output string) error {
	l, err := ParseLevel(level)
	if err != nil {
		return err
	}

	switch strings.ToLower(format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	var (
		sink zapcore.WriteSyncer
		file *os.File
	)
	switch strings.ToLower(output) {
	case "", "stdout":
		sink = zapcore.Lock(os.Stdout)
	case "stderr":
		sink = zapcore.Lock(os.Stderr)
	default:
		file, err = os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log output %s: %w", output, err)
		}
		sink = zapcore.Lock(file)
	}

	currentLevel.SetLevel(l.zapLevel())

	mu.Lock()
	old, oldFile := sugar, outFile
	sugar, outFile = newSugar(format, sink), file
	mu.Unlock()

	_ = old.Sync()
	if oldFile != nil {
		if err := oldFile.Close(); err != nil {
			return fmt.Errorf("failed to close previous log output: %w", err)
		}
	}
	return nil
}

func newSugar(format string, sink zapcore.WriteSyncer) *zap.SugaredLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	if strings.ToLower(format) == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	return zap.New(zapcore.NewCore(enc, sink, currentLevel)).Sugar()
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Sync flushes buffered log entries.
func Sync() error {
	return get().Sync()
}

func Debug(format string, v ...any) {
	get().Debugf(format, v...)
}

func Info(format string, v ...any) {
	get().Infof(format, v...)
}

func Warn(format string, v ...any) {
	get().Warnf(format, v...)
}

func Error(format string, v ...any) {
	get().Errorf(format, v...)
}
