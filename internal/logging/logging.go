package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.Mutex
	logFile *os.File
	logger  = zap.NewNop()
	level   = zap.NewAtomicLevelAt(zapcore.WarnLevel)
)

// Init builds the process logger. Records go to stderr, since stdout carries
// benchmark results, and additionally to logPath when it is not empty.
func Init(logPath string, debug bool) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	if debug {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(levelFromEnv())
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.TimeKey = ""
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.Lock(os.Stderr), level),
	}

	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		logFile = file
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(logFile), zapcore.DebugLevel))
	}

	logger = zap.New(zapcore.NewTee(cores...))
	zap.ReplaceGlobals(logger)
	return nil
}

// Close flushes the logger and closes the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	_ = logger.Sync()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	logger = zap.NewNop()
	zap.ReplaceGlobals(logger)
	return err
}

// L returns the process logger.
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Enabled reports whether records at lvl are written to the console.
func Enabled(lvl zapcore.Level) bool {
	return level.Enabled(lvl)
}

// LogEvent writes a formatted info record.
func LogEvent(format string, args ...any) {
	L().Info(fmt.Sprintf(format, args...))
}

// DumpOutput writes captured subprocess output at info level, one record per
// stream. Empty streams are skipped.
func DumpOutput(source string, stdout, stderr []byte) {
	if !Enabled(zapcore.InfoLevel) {
		return
	}
	if out := formatOutput(stdout); out != "" {
		L().Info(source+" output on stdout", zap.String("output", out))
	}
	if out := formatOutput(stderr); out != "" {
		L().Info(source+" output on stderr", zap.String("output", out))
	}
}

func formatOutput(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return strings.TrimRight(string(data), "\n")
}

// levelFromEnv reads CGBENCH_LOG (error, warn, info, debug). Unknown values
// fall back to warn.
func levelFromEnv() zapcore.Level {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("CGBENCH_LOG")))
	if raw == "" {
		return zapcore.WarnLevel
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		return zapcore.WarnLevel
	}
	return lvl
}
