// Package logging configures the process-wide zap logger and hands out the
// per-component child loggers the mesh subsystems log through.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// The root logger starts as a nop so packages can build child loggers in any
// order; Initialize swaps the real core in before the node starts.
var root = zap.NewNop()

// Config selects the log level and encoder, normally the logging.* config
// keys.
type Config struct {
	Level  string
	Format string
}

// Initialize builds the process logger: colorized console encoding for a
// terminal, or one JSON object per line for collectors. Logs go to stderr
// so gateway sink output on stdout stays machine-readable.
func Initialize(cfg Config) error {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	if strings.EqualFold(cfg.Format, "json") {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	root = zap.New(
		zapcore.NewCore(enc, zapcore.AddSync(os.Stderr), level),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	return nil
}

// Component returns the child logger a subsystem logs through. The component
// tag (plus whatever identity fields the caller adds, typically the device
// id) is what keeps tdma/router/pipeline lines from several simulated nodes
// apart in one merged log.
func Component(name string, fields ...zap.Field) *zap.Logger {
	return root.With(append([]zap.Field{zap.String("component", name)}, fields...)...)
}

// Info logs at info level through the root logger.
func Info(msg string, fields ...zap.Field) { root.Info(msg, fields...) }

// Error logs at error level through the root logger.
func Error(msg string, fields ...zap.Field) { root.Error(msg, fields...) }

// Sync flushes buffered entries on shutdown.
func Sync() {
	_ = root.Sync()
}
