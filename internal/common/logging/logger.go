package logging

import (
	"fmt"
	"os"
	"time"
)

// NewDefaultLogger creates an INFO logger on stdout
func NewDefaultLogger() Logger {
	logger, err := NewZapLogger(LogConfig{Level: InfoLevel})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize default zap logger: %v", err))
	}
	return logger
}

// InitGlobalLogger installs the process logger named after program.
// LOG_LEVEL selects the level, LOG_FILE an optional file to append to
// instead of stdout.
func InitGlobalLogger(program string) error {
	level, levelErr := ParseLevel(os.Getenv("LOG_LEVEL"))

	config := LogConfig{
		Level: level,
		Name:  program,
	}

	logFileName := os.Getenv("LOG_FILE")
	if logFileName != "" {
		file, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", logFileName, err)
		}
		config.Output = file
	}

	logger, err := NewZapLogger(config)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	SetGlobalLogger(logger)

	if levelErr != nil {
		logger.Warn("Ignoring LOG_LEVEL", Err(levelErr))
	}
	logger.Info("Logger initialized",
		String("level", level.String()),
		String("log_file", logFileName),
	)
	return nil
}

// MustSync flushes buffered entries of the global logger. Call it before
// the process exits.
func MustSync() {
	if zapLogger, ok := GetGlobalLogger().(*ZapAdapter); ok {
		_ = zapLogger.Sync()
	}
}

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field with key "error"
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}
