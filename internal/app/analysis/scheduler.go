package analysis

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sessionlens/analyzer/pkg/common/logger"
)

// Scheduler drives the orchestrator on a fixed interval. It owns a single
// timer and an explicit run lock guaranteeing non-overlapping ticks: a tick
// that fires while a run is still in flight is skipped, since the claim
// transaction is the only cross-process exclusion mechanism and nothing
// in-process must circumvent it by racing.
type Scheduler struct {
	interval   time.Duration
	runTimeout time.Duration

	service *Service
	running atomic.Bool

	logger *logger.Logger
	tracer trace.Tracer
}

// NewScheduler creates a scheduler for the given service. Each run executes
// under runTimeout so a hung inference call cannot leave a session claimed
// indefinitely.
func NewScheduler(
	interval time.Duration,
	runTimeout time.Duration,
	service *Service,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Scheduler {
	return &Scheduler{
		interval:   interval,
		runTimeout: runTimeout,
		service:    service,
		logger:     logger.With("component", "analyze_scheduler"),
		tracer:     tracer,
	}
}

// Start blocks, firing one orchestrator run per interval until ctx is
// canceled. An in-flight run is allowed to finish before Start returns.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "analyze scheduler started", "interval", s.interval.String())

	var inFlight sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "analyze scheduler stopping")
			inFlight.Wait()
			return
		case <-ticker.C:
			if !s.running.CompareAndSwap(false, true) {
				s.logger.Warn(ctx, "previous analysis run still in flight; skipping tick")
				continue
			}
			inFlight.Add(1)
			go func() {
				defer inFlight.Done()
				defer s.running.Store(false)
				s.tick(ctx)
			}()
		}
	}
}

// tick executes one bounded orchestrator run.
func (s *Scheduler) tick(ctx context.Context) {
	runID := uuid.New()
	log := s.logger.With("run_id", runID.String())

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	runCtx, span := s.tracer.Start(runCtx, "analyze_scheduler.tick",
		trace.WithAttributes(attribute.String("run_id", runID.String())),
	)
	defer span.End()

	log.Debug(runCtx, "analysis tick fired")
	if err := s.service.RunScheduled(runCtx); err != nil {
		// Claim-level persistence failures are fatal for this tick only; the
		// next tick retries independently.
		span.RecordError(err)
		log.Error(runCtx, "analysis tick failed", "error", err)
	}
}
