package bootstrap

import (
	"os"

	"github.com/rs/zerolog"

	"inbox_server/adapter/in/worker"
	"inbox_server/config"
)

// NewScheduler builds the background poller that keeps connected
// accounts in sync.
func NewScheduler(cfg *config.Config, deps *Dependencies) *worker.PollScheduler {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().
		Timestamp().
		Str("service", "inbox-scheduler").
		Logger()

	return worker.NewPollScheduler(
		deps.Registry,
		deps.IngestService,
		cfg.SyncInterval,
		cfg.SyncStartupDelay,
		cfg.SyncMaxResults,
		log,
	)
}
