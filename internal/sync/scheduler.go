package sync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/saltline/castlog/internal/identity"
)

// Runner is the narrow engine surface the scheduler drives.
type Runner interface {
	RunSync(ctx context.Context) error
}

var errMissingRunner = errors.New("sync: runner is required")

// SchedulerConfig describes the scheduler's collaborators.
type SchedulerConfig struct {
	Runner Runner
	Logger *zap.Logger
	// Interval adds a periodic trigger when positive.
	Interval time.Duration
}

// Scheduler funnels sync triggers (startup, connectivity restored,
// sign-in, explicit requests) into a single loop. Triggers arriving while
// a cycle runs coalesce into at most one queued run, so the single-flight
// property holds deterministically instead of relying on callers racing
// the in-progress guard.
type Scheduler struct {
	runner   Runner
	logger   *zap.Logger
	interval time.Duration
	trigger  chan struct{}
}

// NewScheduler constructs a scheduler around the given runner.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Runner == nil {
		return nil, errMissingRunner
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Scheduler{
		runner:   cfg.Runner,
		logger:   logger,
		interval: cfg.Interval,
		trigger:  make(chan struct{}, 1),
	}, nil
}

// Trigger requests a sync cycle. It never blocks: while a run is queued
// or executing, additional triggers collapse into the one pending slot.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// BindIdentity triggers a cycle on sign-in so locally recorded offline
// data starts reconciling as soon as an owner is known.
func (s *Scheduler) BindIdentity(provider identity.Provider) func() {
	return provider.Subscribe(func(event identity.Event, _ identity.User) {
		if event == identity.EventSignedIn {
			s.Trigger()
		}
	})
}

// Run processes triggers until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	var ticker *time.Ticker
	var tick <-chan time.Time
	if s.interval > 0 {
		ticker = time.NewTicker(s.interval)
		tick = ticker.C
		defer ticker.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			s.Trigger()
		case <-s.trigger:
			if err := s.runner.RunSync(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
				s.logger.Warn("scheduled sync failed", zap.Error(err))
			}
		}
	}
}
