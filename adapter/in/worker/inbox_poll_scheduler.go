// Package worker hosts the background polling loop that keeps
// connected mailboxes in sync.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"inbox_server/core/domain"
	"inbox_server/core/port/in"
)

const (
	// DefaultSyncInterval is how often connected providers are polled.
	DefaultSyncInterval = 1 * time.Minute

	// DefaultStartupDelay gives the server time to settle before the
	// first poll.
	DefaultStartupDelay = 30 * time.Second

	// perSyncTimeout bounds one (user, provider) sync run.
	perSyncTimeout = 2 * time.Minute
)

// ConnectionLister exposes the connected accounts to poll.
type ConnectionLister interface {
	ListConnected(ctx context.Context) ([]*domain.Connection, error)
}

// PollScheduler periodically pulls new messages for every connected
// (user, provider) pair. A pair whose previous run is still in flight
// is skipped, so slow providers cannot stack syncs.
type PollScheduler struct {
	conns        ConnectionLister
	ingest       in.IngestService
	interval     time.Duration
	startupDelay time.Duration
	maxResults   int
	log          zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPollScheduler creates a scheduler polling at interval after an
// initial startupDelay.
func NewPollScheduler(conns ConnectionLister, ingest in.IngestService, interval, startupDelay time.Duration, maxResults int, log zerolog.Logger) *PollScheduler {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	if startupDelay < 0 {
		startupDelay = DefaultStartupDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &PollScheduler{
		conns:        conns,
		ingest:       ingest,
		interval:     interval,
		startupDelay: startupDelay,
		maxResults:   maxResults,
		log:          log.With().Str("component", "poll_scheduler").Logger(),
		inFlight:     make(map[string]bool),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches the polling loop.
func (s *PollScheduler) Start() {
	s.log.Info().
		Dur("interval", s.interval).
		Dur("startup_delay", s.startupDelay).
		Msg("starting poll scheduler")
	s.wg.Add(1)
	go s.run()
}

// Stop cancels the loop and waits for in-flight syncs to finish.
func (s *PollScheduler) Stop() {
	s.log.Info().Msg("stopping poll scheduler")
	s.cancel()
	s.wg.Wait()
}

func (s *PollScheduler) run() {
	defer s.wg.Done()

	select {
	case <-time.After(s.startupDelay):
	case <-s.ctx.Done():
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.pollAll()
	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Msg("poll scheduler stopped")
			return
		case <-ticker.C:
			s.pollAll()
		}
	}
}

func (s *PollScheduler) pollAll() {
	ctx, cancel := context.WithTimeout(s.ctx, perSyncTimeout)
	conns, err := s.conns.ListConnected(ctx)
	cancel()
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list connected accounts")
		return
	}
	if len(conns) == 0 {
		return
	}

	for _, conn := range conns {
		key := conn.UserID.String() + ":" + string(conn.Provider)

		s.mu.Lock()
		if s.inFlight[key] {
			s.mu.Unlock()
			continue
		}
		s.inFlight[key] = true
		s.mu.Unlock()

		s.wg.Add(1)
		go s.syncOne(conn, key)
	}
}

func (s *PollScheduler) syncOne(conn *domain.Connection, key string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, key)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(s.ctx, perSyncTimeout)
	defer cancel()

	emails, err := s.ingest.Fetch(ctx, conn.UserID, conn.Provider, in.FetchOptions{
		MaxResults: s.maxResults,
		OnlyNew:    true,
	})
	if err != nil {
		s.log.Warn().Err(err).
			Str("user_id", conn.UserID.String()).
			Str("provider", string(conn.Provider)).
			Msg("background sync failed")
		return
	}

	if len(emails) > 0 {
		s.log.Info().
			Str("user_id", conn.UserID.String()).
			Str("provider", string(conn.Provider)).
			Int("synced", len(emails)).
			Msg("background sync stored new messages")
	}
}
