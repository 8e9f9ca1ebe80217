package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/saltline/castlog/internal/identity"
)

type fakeRunner struct {
	mu      stdsync.Mutex
	runs    int
	block   chan struct{}
	started chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{started: make(chan struct{}, 16)}
}

func (r *fakeRunner) RunSync(ctx context.Context) error {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()

	r.started <- struct{}{}
	if r.block != nil {
		<-r.block
	}
	return nil
}

func (r *fakeRunner) runCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

type fakeProvider struct {
	callback  func(identity.Event, identity.User)
	cancelled bool
}

func (f *fakeProvider) CurrentUser() (identity.User, bool) {
	return identity.User{}, false
}

func (f *fakeProvider) Subscribe(callback func(identity.Event, identity.User)) func() {
	f.callback = callback
	return func() { f.cancelled = true }
}

func TestSchedulerCoalescesTriggersWhileRunning(t *testing.T) {
	runner := newFakeRunner()
	runner.block = make(chan struct{})

	scheduler, err := NewScheduler(SchedulerConfig{Runner: runner})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = scheduler.Run(ctx)
		close(done)
	}()

	scheduler.Trigger()
	<-runner.started

	// All of these land while the first cycle is blocked; they must
	// collapse into a single queued run.
	for i := 0; i < 5; i++ {
		scheduler.Trigger()
	}
	close(runner.block)

	<-runner.started
	waitUntil(t, func() bool { return runner.runCount() == 2 })

	cancel()
	<-done

	if got := runner.runCount(); got != 2 {
		t.Fatalf("expected exactly 2 runs, got %d", got)
	}
}

func TestSchedulerRunStopsOnContextCancel(t *testing.T) {
	scheduler, err := NewScheduler(SchedulerConfig{Runner: newFakeRunner()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := scheduler.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSchedulerIntervalTriggersPeriodicRuns(t *testing.T) {
	runner := newFakeRunner()
	scheduler, err := NewScheduler(SchedulerConfig{
		Runner:   runner,
		Interval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = scheduler.Run(ctx)
		close(done)
	}()

	<-runner.started
	cancel()
	<-done

	if runner.runCount() < 1 {
		t.Fatalf("expected at least one periodic run")
	}
}

func TestSchedulerTriggersOnSignIn(t *testing.T) {
	scheduler, err := NewScheduler(SchedulerConfig{Runner: newFakeRunner()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	provider := &fakeProvider{}
	unsubscribe := scheduler.BindIdentity(provider)

	provider.callback(identity.EventSignedOut, identity.User{})
	if len(scheduler.trigger) != 0 {
		t.Fatalf("sign-out must not trigger a cycle")
	}

	provider.callback(identity.EventSignedIn, identity.User{ID: "u1"})
	if len(scheduler.trigger) != 1 {
		t.Fatalf("expected a queued cycle after sign-in")
	}

	unsubscribe()
	if !provider.cancelled {
		t.Fatalf("expected subscription to be cancelled")
	}
}

func TestNewSchedulerRequiresRunner(t *testing.T) {
	if _, err := NewScheduler(SchedulerConfig{}); !errors.Is(err, errMissingRunner) {
		t.Fatalf("expected errMissingRunner, got %v", err)
	}
}
