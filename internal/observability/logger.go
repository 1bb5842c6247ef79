// Package observability owns the process-wide CLI logger.
package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger used by command handlers. It discards output
// until InitCLILogger or Configure runs.
var CLILogger = zap.NewNop()

var (
	mu     sync.Mutex
	output io.Writer = os.Stderr
)

// Logger profiles.
const (
	ProfileConsole    = "console"
	ProfileStructured = "structured"
)

// InitCLILogger installs a console logger on stderr. Verbose enables
// debug output; otherwise only info and above are written.
func InitCLILogger(service string, verbose bool) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	install(service, level, ProfileConsole)
}

// Configure installs a logger for the given level name and profile.
func Configure(service, level, profile string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	switch profile {
	case ProfileConsole, ProfileStructured:
	default:
		return fmt.Errorf("unknown log profile %q", profile)
	}
	install(service, lvl, profile)
	return nil
}

// SetOutput redirects future loggers; tests use it to capture output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

func install(service string, level zapcore.Level, profile string) {
	mu.Lock()
	defer mu.Unlock()

	var enc zapcore.Encoder
	if profile == ProfileStructured {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		cfg.EncodeCaller = nil
		enc = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(output), level)
	CLILogger = zap.New(core).With(zap.String("service", service))
}
