package observability

import (
	"github.com/danmuck/adbtp/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger installs the global logger for a long-running process, tagged with app.
func InitLogger(app string, cfg logging.Config) zerolog.Logger {
	logger := logging.New(cfg).With().Str("app", app).Logger()
	log.Logger = logger
	zerolog.SetGlobalLevel(cfg.Level)
	return logger
}
