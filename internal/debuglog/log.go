package debuglog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff // Disables all logging
)

// String returns the string representation of the log level
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
	case LevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel parses a string into a LogLevel
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "OFF":
		return LevelOff
	default:
		return LevelInfo // Default to INFO
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
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

var (
	mu           sync.Mutex
	currentLevel atomic.Int32
	atomicLevel  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	format       = "console"
	logger       atomic.Pointer[zap.SugaredLogger]
	logFile      *os.File
)

func init() {
	currentLevel.Store(int32(LevelOff))
	logger.Store(zap.NewNop().Sugar())
}

// SetFormat selects the encoder used by the next Setup call: "console" or "json".
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()
	format = strings.ToLower(strings.TrimSpace(f))
}

// Setup configures the logging system with the specified level and optional file path.
// If filePath is empty, defaults to ~/.consult/consult.log.
func Setup(level LogLevel, filePath ...string) error {
	mu.Lock()
	defer mu.Unlock()

	currentLevel.Store(int32(level))

	// Close existing log file if open
	closeLocked()

	if level == LevelOff {
		return nil
	}

	var logPath string
	if len(filePath) > 0 && filePath[0] != "" {
		logPath = filePath[0]
	} else {
		home, _ := os.UserHomeDir()
		logPath = filepath.Join(home, ".consult", "consult.log")
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	if format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	atomicLevel.SetLevel(level.zapLevel())
	core := zapcore.NewCore(enc, zapcore.AddSync(f), atomicLevel)

	logFile = f
	logger.Store(zap.New(core).Named("consult").Sugar())
	return nil
}

// SetupWithBool provides backward compatibility with the old Setup(bool) signature
func SetupWithBool(enabled bool) {
	if enabled {
		_ = Setup(LevelInfo)
	} else {
		_ = Setup(LevelOff)
	}
}

// SetLevel changes the current logging level
func SetLevel(level LogLevel) {
	currentLevel.Store(int32(level))
	if level != LevelOff {
		atomicLevel.SetLevel(level.zapLevel())
	}
}

// GetLevel returns the current logging level
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// Close flushes and closes the log file if open
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	return closeLocked()
}

func closeLocked() error {
	prev := logger.Swap(zap.NewNop().Sugar())
	_ = prev.Sync()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

func enabled(level LogLevel) bool {
	current := GetLevel()
	return current != LevelOff && level >= current
}

func Debugf(format string, args ...any) {
	if enabled(LevelDebug) {
		logger.Load().Debugf(format, args...)
	}
}

func Infof(format string, args ...any) {
	if enabled(LevelInfo) {
		logger.Load().Infof(format, args...)
	}
}

func Warnf(format string, args ...any) {
	if enabled(LevelWarn) {
		logger.Load().Warnf(format, args...)
	}
}

func Errorf(format string, args ...any) {
	if enabled(LevelError) {
		logger.Load().Errorf(format, args...)
	}
}

// FieldLogger attaches structured key-value fields to every message.
type FieldLogger struct {
	fields []any
}

// WithFields returns a new logger with the specified fields
func WithFields(fields map[string]interface{}) *FieldLogger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kv := make([]any, 0, len(fields)*2)
	for _, k := range keys {
		kv = append(kv, k, fields[k])
	}
	return &FieldLogger{fields: kv}
}

func (fl *FieldLogger) sugar() *zap.SugaredLogger {
	return logger.Load().With(fl.fields...)
}

func (fl *FieldLogger) Debugf(format string, args ...any) {
	if enabled(LevelDebug) {
		fl.sugar().Debugf(format, args...)
	}
}

func (fl *FieldLogger) Infof(format string, args ...any) {
	if enabled(LevelInfo) {
		fl.sugar().Infof(format, args...)
	}
}

func (fl *FieldLogger) Warnf(format string, args ...any) {
	if enabled(LevelWarn) {
		fl.sugar().Warnf(format, args...)
	}
}

func (fl *FieldLogger) Errorf(format string, args ...any) {
	if enabled(LevelError) {
		fl.sugar().Errorf(format, args...)
	}
}
