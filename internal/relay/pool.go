package relay

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bizwatch/bizrelay/internal/models"
)

// FanoutJob is one normalized, verified event ready for delivery to its
// tenant's endpoints.
type FanoutJob struct {
	Event  models.InboundEvent
	Record models.MonitoredRecord
}

// Pool runs fan-out jobs on a bounded set of workers so an inbound burst
// cannot spawn an unbounded number of goroutines. Workers log and swallow
// per-job problems; one bad event never takes the pool down.
type Pool struct {
	jobs    chan FanoutJob
	workers int
	log     zerolog.Logger
	wg      sync.WaitGroup
	stop    chan struct{}
}

func NewPool(workers int, log zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 8
	}
	return &Pool{
		jobs:    make(chan FanoutJob, workers*32),
		workers: workers,
		log:     log,
		stop:    make(chan struct{}),
	}
}

func (p *Pool) Start(ctx context.Context, run func(ctx context.Context, job FanoutJob)) {
	p.log.Info().Int("workers", p.workers).Msg("starting fan-out worker pool")
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-p.stop:
					return
				case <-ctx.Done():
					return
				case job := <-p.jobs:
					run(ctx, job)
				}
			}
		}()
	}
}

// Submit enqueues a job without blocking the inbound HTTP handler. A false
// return means the queue is saturated and the job was dropped; the event is
// already stored, so the caller decides how loudly to complain.
func (p *Pool) Submit(job FanoutJob) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

func (p *Pool) Stop() {
	p.log.Info().Msg("stopping fan-out worker pool")
	close(p.stop)
	p.wg.Wait()
	p.log.Info().Msg("fan-out worker pool stopped")
}
