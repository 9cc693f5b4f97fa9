package services

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSweepInterval = 10 * time.Minute
	DefaultReviewTimeout = 30 * time.Minute
)

type staleReviewStore interface {
	FailStaleReviews(ctx context.Context, receivedBefore time.Time) (int64, error)
}

// ReviewSweeper periodically closes snapshot reviews whose job was lost, so no
// snapshot stays pending forever.
type ReviewSweeper struct {
	store    staleReviewStore
	clock    clockwork.Clock
	interval time.Duration
	timeout  time.Duration
	stopChan chan struct{}
	done     chan struct{}
}

func NewReviewSweeper(store staleReviewStore, clock clockwork.Clock, interval, timeout time.Duration) *ReviewSweeper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if timeout <= 0 {
		timeout = DefaultReviewTimeout
	}
	return &ReviewSweeper{
		store:    store,
		clock:    clock,
		interval: interval,
		timeout:  timeout,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *ReviewSweeper) Start() {
	go s.loop()
	log.Info().Dur("interval", s.interval).Dur("timeout", s.timeout).Msg("review sweeper started")
}

func (s *ReviewSweeper) Stop() {
	select {
	case <-s.stopChan:
		return
	default:
		close(s.stopChan)
	}
	<-s.done
}

func (s *ReviewSweeper) loop() {
	defer close(s.done)

	// Run on startup as well as by interval.
	s.sweep(context.Background())

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.Chan():
			s.sweep(context.Background())
		}
	}
}

func (s *ReviewSweeper) sweep(ctx context.Context) {
	cutoff := s.clock.Now().Add(-s.timeout)
	n, err := s.store.FailStaleReviews(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("review sweep failed")
		return
	}
	if n > 0 {
		log.Warn().Int64("snapshots", n).Time("cutoff", cutoff).Msg("marked stale snapshot reviews as failed")
	}
}
