package logging

import (
	"os"

	"go.uber.org/zap"
)

// New returns a JSON logger writing to stdout. LOG_FORMAT=console switches to
// a human-readable development output.
func New() *zap.Logger {
	cfg := zap.NewProductionConfig()
	if os.Getenv("LOG_FORMAT") == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	return zap.Must(cfg.Build())
}
