package observability

import (
	"log/slog"

	"github.com/couchcryptid/hazard-fusion-service/internal/config"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// ServiceName is attached to every log line.
const ServiceName = "hazard-fusion"

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and makes
// it the slog default.
func NewLogger(cfg *config.Config) *slog.Logger {
	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat).With("service", ServiceName)
	slog.SetDefault(logger)
	return logger
}
