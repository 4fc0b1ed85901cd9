// Package logging builds the zap loggers shared by the server and the CLIs.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger. Level is debug, info, warn or error; anything else
// is info. Format "console" gives the development encoder, anything else JSON
// with ISO8601 timestamps on stdout.
//
// Every entry carries service_name so the server and the CLIs can share one
// log sink, and hostname so replicas behind the shared rate window can be told
// apart.
func New(level, format, serviceName string) (*zap.Logger, error) {
	return newConfig(level, format, serviceName).Build()
}

func newConfig(level, format, serviceName string) zap.Config {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil || lvl < zapcore.DebugLevel || lvl > zapcore.ErrorLevel {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	fields := map[string]interface{}{}
	if serviceName != "" {
		fields["service_name"] = serviceName
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		fields["hostname"] = hostname
	}
	if len(fields) > 0 {
		cfg.InitialFields = fields
	}
	return cfg
}
