package relay

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bizwatch/bizrelay/internal/config"
	"github.com/bizwatch/bizrelay/internal/storage"
)

const retryBatchSize = 100

// Sweeper drives the two periodic jobs: the retry sweep that re-dispatches
// due delivery attempts, and the retention purge. A single timer per job;
// retries never block the fan-out pool.
type Sweeper struct {
	store      storage.Storage
	dispatcher *Dispatcher
	interval   time.Duration
	retention  config.RetentionConfig
	log        zerolog.Logger
	stop       chan struct{}
	wg         sync.WaitGroup
}

func NewSweeper(store storage.Storage, dispatcher *Dispatcher, cfg config.DeliveryConfig, retention config.RetentionConfig, log zerolog.Logger) *Sweeper {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		store:      store,
		dispatcher: dispatcher,
		interval:   interval,
		retention:  retention,
		log:        log,
		stop:       make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("starting retry sweeper")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SweepRetries(ctx)
			}
		}
	}()

	if s.retention.SweepInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ticker := time.NewTicker(s.retention.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-s.stop:
					return
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.purgeExpired(ctx)
				}
			}
		}()
	}
}

func (s *Sweeper) Stop() {
	close(s.stop)
	s.wg.Wait()
	s.log.Info().Msg("retry sweeper stopped")
}

// SweepRetries re-dispatches every retrying attempt whose next_retry_at has
// passed. Each due row is claimed first so it is picked exactly once; the
// follow-up delivery is a fresh attempt row with AttemptNumber+1. Attempts
// whose endpoint has been disabled or deleted in the meantime are closed as
// terminal failures instead of redelivered.
func (s *Sweeper) SweepRetries(ctx context.Context) {
	due, err := s.store.DueRetries(ctx, time.Now().UTC(), retryBatchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to fetch due retries")
		return
	}

	for _, attempt := range due {
		if err := s.store.ClaimRetry(ctx, attempt.ID); err != nil {
			s.log.Error().Err(err).Str("attempt_id", attempt.ID).Msg("failed to claim retry")
			continue
		}

		ep, err := s.store.GetEndpoint(ctx, attempt.EndpointID)
		if err != nil {
			s.log.Error().Err(err).Str("attempt_id", attempt.ID).Msg("failed to load endpoint for retry")
			continue
		}
		if ep == nil {
			s.store.MarkAttemptAbandoned(ctx, attempt.ID, "endpoint deleted")
			continue
		}
		if !ep.Enabled {
			if err := s.store.MarkAttemptAbandoned(ctx, attempt.ID, "endpoint disabled"); err != nil {
				s.log.Error().Err(err).Str("attempt_id", attempt.ID).Msg("failed to abandon attempt")
			}
			s.log.Info().Str("attempt_id", attempt.ID).Str("endpoint_id", ep.ID).Msg("retry abandoned, endpoint disabled")
			continue
		}

		if _, err := s.dispatcher.Deliver(ctx, ep, attempt.EventID, attempt.Category, attempt.SubjectRecordID, attempt.RequestBody, attempt.AttemptNumber+1); err != nil {
			s.log.Error().Err(err).Str("attempt_id", attempt.ID).Msg("retry delivery not recorded")
		}
	}
}

func (s *Sweeper) purgeExpired(ctx context.Context) {
	result, err := s.store.PurgeExpired(ctx, s.retention.EventTTL, s.retention.AttemptTTL)
	if err != nil {
		s.log.Error().Err(err).Msg("retention purge failed")
		return
	}
	if result.Events > 0 || result.Attempts > 0 {
		s.log.Info().
			Int64("events", result.Events).
			Int64("attempts", result.Attempts).
			Msg("retention purge completed")
	}
}
