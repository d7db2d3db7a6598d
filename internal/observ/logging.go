package observ

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init installs the process-wide JSON logger. Before Init the package logs
// through zap's no-op global, which keeps tests quiet.
func Init(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.MessageKey = "event"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(l)
	return nil
}

// Sync flushes buffered entries. Call on shutdown.
func Sync() {
	_ = zap.L().Sync()
}

func Log(event string, kv map[string]any) {
	zap.L().Info(event, fields(kv)...)
}

func Warn(event string, kv map[string]any) {
	zap.L().Warn(event, fields(kv)...)
}

func Error(event string, kv map[string]any) {
	zap.L().Error(event, fields(kv)...)
}

// fields flattens kv in sorted key order so output is stable.
func fields(kv map[string]any) []zap.Field {
	if len(kv) == 0 {
		return nil
	}
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fs := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		fs = append(fs, zap.Any(k, kv[k]))
	}
	return fs
}
