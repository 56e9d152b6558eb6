// Package log builds the logr.Logger used throughout socialload.
package log

import (
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the logger flavour.
type Options struct {
	// Level is debug, info, warn or error.
	Level string
	// JSON switches from the console encoder to sampled production JSON.
	JSON bool
	// Output overrides stderr; used by tests.
	Output io.Writer
}

// NewZapr returns a zap-backed logr.Logger.
func NewZapr(opts Options) (logr.Logger, error) {
	level, err := zapcore.ParseLevel(defaultLevel(opts.Level))
	if err != nil {
		return logr.Discard(), fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	var zapCfg zap.Config
	if opts.JSON {
		zapCfg = zap.NewProductionConfig()
		zapCfg.Sampling = &zap.SamplingConfig{
			Initial:    1,
			Thereafter: 5,
		}
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.DisableStacktrace = true
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	if opts.Output != nil {
		var enc zapcore.Encoder
		if opts.JSON {
			enc = zapcore.NewJSONEncoder(zapCfg.EncoderConfig)
		} else {
			enc = zapcore.NewConsoleEncoder(zapCfg.EncoderConfig)
		}
		core := zapcore.NewCore(enc, zapcore.AddSync(opts.Output), zapCfg.Level)
		return zapr.NewLogger(zap.New(core)), nil
	}

	zapLggr, err := zapCfg.Build()
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(zapLggr), nil
}

func defaultLevel(s string) string {
	if s == "" {
		return "info"
	}
	return s
}
