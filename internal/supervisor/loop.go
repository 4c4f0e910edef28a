package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/danvaneijck/chance-staking-operator/internal/log"
)

// Runner is one control loop's unit of work. internal/beacon.Mirror,
// internal/epoch.Controller, and internal/draw.Controller all implement
// this so a single Loop type can drive any of them on a fixed period — each
// runs independently, on its own period, sharing only the chain client and,
// between the epoch and draw controllers, the snapshot cache (spec §4.8:
// "independent loops, each on its own timer").
type Runner interface {
	Name() string
	RunOnce(ctx context.Context) error
}

// Loop wraps a Runner with a ticker and turns it into a Service +
// SubsystemChecker the supervisor can start, stop, and poll for health.
// Adapted from the teacher's subsystem-goroutine pattern: each loop owns
// its own cancellation and reports its own health, so one loop wedging
// never blocks another (spec §5).
type Loop struct {
	runner Runner
	period time.Duration
	log    *log.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool

	health SubsystemHealth
}

// NewLoop constructs a Loop that calls runner.RunOnce once per period.
func NewLoop(runner Runner, period time.Duration) *Loop {
	return &Loop{
		runner: runner,
		period: period,
		log:    log.Module("supervisor").With("loop", runner.Name()),
		health: SubsystemHealth{Name: runner.Name(), Healthy: true},
	}
}

// Name implements Service.
func (l *Loop) Name() string { return l.runner.Name() }

// Start launches the loop's goroutine. Safe to call once; a second call is
// a no-op.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.started = true

	go l.run(ctx)
	return nil
}

// Stop cancels the loop's context and waits for its goroutine to exit.
func (l *Loop) Stop() error {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return nil
	}
	cancel := l.cancel
	done := l.done
	l.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Check implements SubsystemChecker.
func (l *Loop) Check() SubsystemHealth {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.health
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	l.tick(ctx)

	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	err := l.runner.RunOnce(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.health.RunCount++
	if err != nil {
		l.health.ErrorCount++
		l.health.LastError = err.Error()
		l.health.Healthy = false
		l.log.Error("run failed", "error", err)
		return
	}
	l.health.LastRun = time.Now()
	l.health.LastError = ""
	l.health.Healthy = true
}
