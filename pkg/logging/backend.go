package logging

import (
	"fmt"
	"os"

	sprintfLogging "github.com/core-tools/hsu-core/pkg/logging/sprintf"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	BackendZap = "zap"
	BackendStd = "std"
)

// BackendConfig selects and tunes the process-wide log backend.
type BackendConfig struct {
	Backend string `yaml:"backend"` // "zap" or "std"
	Level   string `yaml:"level"`   // debug, info, warn, error
	Format  string `yaml:"format"`  // console or json, zap only
}

// NewBackend builds the root logger plus a flush function to call before exit.
func NewBackend(config BackendConfig) (Logger, func(), error) {
	switch config.Backend {
	case BackendZap, "":
		zapLogger, err := newZapLogger(config)
		if err != nil {
			return nil, nil, err
		}
		sugar := zapLogger.Sugar()
		return NewLogger("", LogFuncs{
			Debugf: sugar.Debugf,
			Infof:  sugar.Infof,
			Warnf:  sugar.Warnf,
			Errorf: sugar.Errorf,
		}), func() { _ = zapLogger.Sync() }, nil
	case BackendStd:
		std := sprintfLogging.NewStdSprintfLogger()
		funcs := LogFuncs{
			Infof:  std.Infof,
			Warnf:  std.Warnf,
			Errorf: std.Errorf,
		}
		if config.Level == "debug" {
			funcs.Debugf = std.Debugf
		}
		return NewLogger("", funcs), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown log backend: %s", config.Backend)
	}
}

func newZapLogger(config BackendConfig) (*zap.Logger, error) {
	level, err := ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	switch config.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stdout)), level)
	return zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// ParseLevel maps a config level name onto zap; empty means info.
func ParseLevel(name string) (zapcore.Level, error) {
	switch name {
	case "debug":
		return zap.DebugLevel, nil
	case "info", "":
		return zap.InfoLevel, nil
	case "warn":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("invalid log level: %s", name)
	}
}
