package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lancscode/chatter/internal/config"
)

// newLogger builds the process logger. Logs go to stderr so the chat on
// stdout stays readable.
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		lvl, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("logging level: %w", err)
		}
		zc.Level = lvl
	}
	return zc.Build()
}
