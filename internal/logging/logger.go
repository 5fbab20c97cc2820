package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hackgods/medvault-scheduling/internal/config"
)

// New builds the process logger. Production environments get JSON output,
// everything else gets the colored development encoder.
func New(c config.Config) (*zap.Logger, error) {
	var cfg zap.Config

	if c.IsProduction() {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	cfg.OutputPaths = []string{"stdout"}

	return cfg.Build()
}

// Must is New for main packages that cannot run without a logger.
func Must(c config.Config) *zap.Logger {
	logger, err := New(c)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	return logger
}
